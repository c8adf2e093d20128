// Package plugins implements the plugin installation pipeline: staging a
// remote repository, resolving its descriptor, ingesting its skills, and
// the install/update/uninstall lifecycle over the record store.
package plugins

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/guildhall-ai/guildhall/internal/store"
)

// Manager orchestrates plugin lifecycle transactions. It owns the plugin
// status state machine: install creates "installed", update passes through
// "updating" to "installed" or "error", uninstall deletes.
type Manager struct {
	records  *store.Store
	stager   Stager
	resolver *Resolver
	ingestor *Ingestor
	log      *slog.Logger

	// installRaceHook, when set, runs between the duplicate pre-check and
	// the record insert. Tests use it to interleave a competing install.
	installRaceHook func()
}

func NewManager(records *store.Store, stager Stager, resolver *Resolver, ingestor *Ingestor, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		records:  records,
		stager:   stager,
		resolver: resolver,
		ingestor: ingestor,
		log:      log,
	}
}

// Install stages the repository, resolves its descriptor, ingests its
// skills, and registers the plugin. The ref defaults to "main". A source
// URL that is already registered fails with a ValidationError naming the
// existing plugin; the unique index in the store closes the window between
// the pre-check and the insert.
func (m *Manager) Install(ctx context.Context, sourceURL string, ref string) (*store.Plugin, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" {
		return nil, &ValidationError{Message: "missing source url"}
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		ref = "main"
	}

	stagePath, cleanup, err := m.stager.Stage(ctx, sourceURL, ref)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	desc, err := m.resolver.Resolve(stagePath, sourceURL)
	if err != nil {
		return nil, err
	}

	existing, err := m.records.FindPluginBySourceURL(ctx, sourceURL)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, m.alreadyInstalledError(sourceURL, existing)
	}
	if m.installRaceHook != nil {
		m.installRaceHook()
	}

	created := m.ingestor.Ingest(ctx, stagePath, desc)
	ids := skillIDs(created)

	plugin, err := m.records.PutPlugin(ctx, store.Plugin{
		Name:        desc.Name,
		Description: desc.Description,
		Version:     desc.Version,
		Author:      desc.Author,
		SourceURL:   sourceURL,
		SourceRef:   ref,
		SkillIDs:    ids,
		Status:      store.PluginStatusInstalled,
		Marketplace: desc.Marketplace,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateSourceURL) {
			// Lost the insert race. The winner ingested the same repo, so
			// its records claim the same folder names this attempt staged;
			// the rollback must leave those folders in place.
			winner, lookupErr := m.records.FindPluginBySourceURL(ctx, sourceURL)
			if lookupErr == nil && winner != nil {
				m.ingestor.Remove(ctx, ids, FolderNames(m.skillRecords(ctx, winner.SkillIDs)))
				return nil, m.alreadyInstalledError(sourceURL, winner)
			}
			// Winner unknown. Drop this attempt's records but keep the
			// content folders; they may be the winner's only copy.
			m.ingestor.Remove(ctx, ids, FolderNames(created))
			return nil, m.alreadyInstalledError(sourceURL, nil)
		}
		m.ingestor.Remove(ctx, ids, nil)
		return nil, err
	}

	m.log.Info("installed plugin", "name", plugin.Name, "version", plugin.Version, "skills", len(ids), "marketplace", plugin.Marketplace)
	return plugin, nil
}

// Update re-stages the plugin's source and replaces its skill set with a
// copy-and-swap: the new skills are registered first, the record flips to
// them in one write, then the old records are removed. A caller-supplied
// ref becomes the plugin's stored ref. Failures after the "updating"
// transition leave the plugin in status "error" with the diagnostic
// retained.
//
// The second return value is every skill id the update touched (old set
// plus new set), so the caller can rebuild the workspaces of agents whose
// grants intersect it.
func (m *Manager) Update(ctx context.Context, id string, refOverride string) (*store.Plugin, []string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	p, err := m.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	// Progress signal visible to readers while the operation runs. Not a
	// lock.
	updating := store.PluginStatusUpdating
	if _, err := m.records.UpdatePlugin(ctx, p.ID, store.PluginPatch{Status: &updating}); err != nil {
		return nil, nil, err
	}

	ref := strings.TrimSpace(refOverride)
	if ref == "" {
		ref = p.SourceRef
	}

	stagePath, cleanup, err := m.stager.Stage(ctx, p.SourceURL, ref)
	if err != nil {
		m.markError(ctx, p.ID, err)
		return nil, nil, err
	}
	defer cleanup()

	desc, err := m.resolver.Resolve(stagePath, p.SourceURL)
	if err != nil {
		m.markError(ctx, p.ID, err)
		return nil, nil, err
	}

	newSkills := m.ingestor.Ingest(ctx, stagePath, desc)
	newIDs := skillIDs(newSkills)
	newFolders := FolderNames(newSkills)

	installed := store.PluginStatusInstalled
	clearMsg := ""
	swapped, err := m.records.UpdatePlugin(ctx, p.ID, store.PluginPatch{
		Version:      &desc.Version,
		Description:  &desc.Description,
		Author:       &desc.Author,
		SourceRef:    &ref,
		SkillIDs:     &newIDs,
		Status:       &installed,
		ErrorMessage: &clearMsg,
	})
	if err != nil || swapped == nil {
		// Roll the new set back. Folders the old records still reference
		// stay on disk.
		m.ingestor.Remove(ctx, newIDs, FolderNames(m.skillRecords(ctx, p.SkillIDs)))
		if err == nil {
			err = &NotFoundError{Entity: "plugin", ID: p.ID}
		}
		m.markError(ctx, p.ID, err)
		return nil, nil, err
	}

	// Old records go last. Folder names the new set owns are retained on
	// disk since their content is already the new version.
	removed := m.ingestor.Remove(ctx, p.SkillIDs, newFolders)

	m.log.Info("updated plugin", "name", swapped.Name, "version", swapped.Version, "ref", ref, "skills", len(newIDs), "old_skills_removed", removed)
	return swapped, unionIDs(p.SkillIDs, newIDs), nil
}

// Uninstall removes the plugin's skills (best-effort per skill) and deletes
// the record. Blob deletion warnings do not fail the operation. Returns the
// skill ids that left the system.
func (m *Manager) Uninstall(ctx context.Context, id string) ([]string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	p, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	removed := m.ingestor.Remove(ctx, p.SkillIDs, nil)
	if _, err := m.records.DeletePlugin(ctx, p.ID); err != nil {
		return nil, err
	}

	m.log.Info("uninstalled plugin", "name", p.Name, "skills_removed", removed)
	return p.SkillIDs, nil
}

func (m *Manager) List(ctx context.Context) ([]store.Plugin, error) {
	return m.records.ListPlugins(ctx)
}

// Get returns a NotFoundError for unknown ids so callers can map it to a
// not-found response.
func (m *Manager) Get(ctx context.Context, id string) (*store.Plugin, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	id = strings.TrimSpace(id)
	p, err := m.records.GetPlugin(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &NotFoundError{Entity: "plugin", ID: id}
	}
	return p, nil
}

func (m *Manager) alreadyInstalledError(sourceURL string, existing *store.Plugin) *ValidationError {
	if existing == nil {
		return &ValidationError{Message: fmt.Sprintf("plugin already installed from %s", sourceURL)}
	}
	return &ValidationError{Message: fmt.Sprintf("plugin already installed from %s as %q", sourceURL, existing.Name)}
}

func (m *Manager) markError(ctx context.Context, id string, cause error) {
	status := store.PluginStatusError
	msg := cause.Error()
	if _, err := m.records.UpdatePlugin(ctx, id, store.PluginPatch{Status: &status, ErrorMessage: &msg}); err != nil {
		m.log.Warn("failed to record plugin error state", "id", id, "error", err)
	}
}

func (m *Manager) skillRecords(ctx context.Context, ids []string) []store.Skill {
	out := make([]store.Skill, 0, len(ids))
	for _, id := range ids {
		rec, err := m.records.GetSkill(ctx, id)
		if err != nil || rec == nil {
			continue
		}
		out = append(out, *rec)
	}
	return out
}

func skillIDs(recs []store.Skill) []string {
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.ID)
	}
	return ids
}

func unionIDs(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, id := range a {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, id := range b {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
