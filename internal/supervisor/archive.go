package supervisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
)

// ArchiveKey is the object path of a report: prefix/status/strategy/YYYY/MM/DD/HHMMSS.json.
func ArchiveKey(prefix string, st Status) string {
	t := st.Time.UTC()
	return path.Join(prefix, "status", st.Strategy, t.Format("2006/01/02"), t.Format("150405")+".json")
}

// Archive uploads the latest report.
func (s *Supervisor) Archive(ctx context.Context) error {
	if s.archive == nil {
		return nil
	}
	st := s.Latest()
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("supervisor: encode status: %w", err)
	}
	key := ArchiveKey(s.archivePrefix, st)
	if err := s.archive.Put(ctx, key, bytes.NewReader(data), "application/json"); err != nil {
		return fmt.Errorf("supervisor: archive %s: %w", key, err)
	}
	s.logger.DebugContext(ctx, "status archived", slog.String("key", key), slog.Int("bytes", len(data)))
	return nil
}
