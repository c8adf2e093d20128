package plugins

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/guildhall-ai/guildhall/internal/skills"
	"github.com/guildhall-ai/guildhall/internal/store"
)

// Ingestor moves skill folders from a staged repository into the platform:
// content into the skill store, records into the persistence layer. One bad
// skill never aborts the rest; failures are logged and that skill is simply
// absent from the result.
type Ingestor struct {
	records *store.Store
	content *skills.Store
	log     *slog.Logger
}

func NewIngestor(records *store.Store, content *skills.Store, log *slog.Logger) *Ingestor {
	if log == nil {
		log = slog.Default()
	}
	return &Ingestor{records: records, content: content, log: log}
}

// Ingest registers every skill folder the descriptor names (or every
// subfolder of skills/ when the descriptor declares none) and returns the
// records that succeeded.
func (ing *Ingestor) Ingest(ctx context.Context, stagePath string, desc *Descriptor) []store.Skill {
	if ctx == nil {
		ctx = context.Background()
	}

	folders := desc.Skills
	if len(folders) == 0 {
		folders = listSkillFolders(filepath.Join(stagePath, skillsDirName))
	}

	created := make([]store.Skill, 0, len(folders))
	for _, folder := range folders {
		rec, ok := ing.ingestOne(ctx, stagePath, desc.Name, folder)
		if ok {
			created = append(created, rec)
		}
	}
	return created
}

func (ing *Ingestor) ingestOne(ctx context.Context, stagePath string, pluginName string, folder string) (store.Skill, bool) {
	if !skills.ValidFolderName(folder) {
		ing.log.Warn("skipping skill with unsafe folder name", "plugin", pluginName, "folder", folder)
		return store.Skill{}, false
	}

	src := filepath.Join(stagePath, skillsDirName, folder)
	if _, err := os.Stat(src); err != nil {
		ing.log.Warn("skipping skill: folder missing", "plugin", pluginName, "folder", folder, "error", err)
		return store.Skill{}, false
	}
	if _, err := os.Stat(filepath.Join(src, "SKILL.md")); err != nil {
		ing.log.Warn("skipping skill: no SKILL.md", "plugin", pluginName, "folder", folder)
		return store.Skill{}, false
	}

	meta, err := ing.content.ExtractMetadata(src)
	if err != nil {
		ing.log.Warn("skipping skill: metadata extraction failed", "plugin", pluginName, "folder", folder, "error", err)
		return store.Skill{}, false
	}

	location, err := ing.content.Persist(folder, src)
	if err != nil {
		ing.log.Warn("skipping skill: persist failed", "plugin", pluginName, "folder", folder, "error", err)
		return store.Skill{}, false
	}

	rec, err := ing.records.PutSkill(ctx, store.Skill{
		Name:         meta.Name,
		Description:  meta.Description,
		Version:      meta.Version,
		Author:       meta.Author,
		BlobLocation: location,
		CreatedBy:    "plugin:" + pluginName,
		IsSystem:     false,
	})
	if err != nil {
		ing.log.Warn("skipping skill: record insert failed", "plugin", pluginName, "folder", folder, "error", err)
		return store.Skill{}, false
	}

	ing.log.Info("ingested skill", "plugin", pluginName, "skill", rec.Name, "id", rec.ID)
	return *rec, true
}

// Remove deletes skill content and records for the given ids and reports
// how many records went away. Content deletion is best-effort: a failed or
// retained blob never blocks record removal (an orphaned folder beats an
// undeletable record). Folder names present in retain are left on disk;
// update passes the folders its new skill set owns.
func (ing *Ingestor) Remove(ctx context.Context, skillIDs []string, retain map[string]bool) int {
	if ctx == nil {
		ctx = context.Background()
	}

	removed := 0
	for _, id := range skillIDs {
		rec, err := ing.records.GetSkill(ctx, id)
		if err != nil {
			ing.log.Warn("skill removal: lookup failed", "id", id, "error", err)
			continue
		}
		if rec == nil {
			ing.log.Warn("skill removal: record already gone", "id", id)
			continue
		}

		if folder, ok := skills.FolderFromLocation(rec.BlobLocation); ok && !retain[folder] {
			if err := ing.content.Delete(folder); err != nil {
				ing.log.Warn("skill removal: content delete failed", "id", id, "folder", folder, "error", err)
			}
		}

		ok, err := ing.records.DeleteSkill(ctx, id)
		if err != nil {
			ing.log.Warn("skill removal: record delete failed", "id", id, "error", err)
			continue
		}
		if ok {
			removed++
		}
	}
	return removed
}

// FolderNames maps skill records to their canonical folder names, used to
// compute the retained set during update.
func FolderNames(recs []store.Skill) map[string]bool {
	out := make(map[string]bool, len(recs))
	for _, rec := range recs {
		if folder, ok := skills.FolderFromLocation(rec.BlobLocation); ok {
			out[folder] = true
		}
	}
	return out
}

func listSkillFolders(skillsDir string) []string {
	entries, err := os.ReadDir(skillsDir)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			out = append(out, entry.Name())
		}
	}
	return out
}
