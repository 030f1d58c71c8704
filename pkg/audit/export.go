package audit

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/canonicalize"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/contracts"
)

// Pack file names.
const (
	PackReport   = "report.json"
	PackEvents   = "events.jsonl"
	PackManifest = "manifest.json"
)

var (
	// ErrNilReport is returned when packing a nil report.
	ErrNilReport = errors.New("audit: nil report")
	// ErrPackCorrupt is returned when a pack's files do not match its manifest.
	ErrPackCorrupt = errors.New("audit: pack does not match manifest")
)

// Manifest describes the contents of a report pack.
type Manifest struct {
	ReportID        string            `json:"report_id"`
	EvidenceID      string            `json:"evidence_id"`
	GeneratedAt     time.Time         `json:"generated_at"`
	GeneratedBy     string            `json:"generated_by"`
	EventCount      int               `json:"event_count"`
	HeadHash        string            `json:"head_hash"`
	ChainValid      bool              `json:"chain_valid"`
	DigestAlgorithm string            `json:"digest_algorithm"`
	Digest          string            `json:"digest"`
	Files           map[string]string `json:"files"`
}

// BuildPack renders a sealed report as a zip archive holding the canonical
// report, its events one per line, and a manifest of file hashes. The same
// report always yields the same bytes.
func BuildPack(report *contracts.AuditReport) ([]byte, error) {
	if report == nil {
		return nil, ErrNilReport
	}
	if report.Digest == "" {
		return nil, ErrUnsealed
	}

	reportJSON, err := canonicalize.JCS(report)
	if err != nil {
		return nil, fmt.Errorf("audit: canonicalize report: %w", err)
	}
	var events bytes.Buffer
	for _, e := range report.Events {
		line, err := canonicalize.JCS(e)
		if err != nil {
			return nil, fmt.Errorf("audit: canonicalize event %s: %w", e.ID, err)
		}
		events.Write(line)
		events.WriteByte('\n')
	}

	m := Manifest{
		ReportID:        report.ID,
		GeneratedAt:     report.GeneratedAt,
		GeneratedBy:     report.GeneratedBy,
		EventCount:      len(report.Events),
		ChainValid:      report.ChainValid,
		DigestAlgorithm: report.DigestAlgorithm,
		Digest:          report.Digest,
		Files: map[string]string{
			PackReport: canonicalize.HashBytes(reportJSON),
			PackEvents: canonicalize.HashBytes(events.Bytes()),
		},
	}
	if report.Evidence != nil {
		m.EvidenceID = report.Evidence.ID
		m.HeadHash = report.Evidence.HeadHash
	}
	manifestJSON, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("audit: failed to marshal manifest: %w", err)
	}

	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)
	files := []struct {
		name string
		data []byte
	}{
		{PackReport, reportJSON},
		{PackEvents, events.Bytes()},
		{PackManifest, manifestJSON},
	}
	for _, f := range files {
		fw, err := w.CreateHeader(&zip.FileHeader{
			Name:     f.name,
			Method:   zip.Deflate,
			Modified: report.GeneratedAt,
		})
		if err != nil {
			return nil, err
		}
		if _, err := fw.Write(f.data); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadPack opens a report pack, checks every file against the manifest and
// verifies the report digest.
func ReadPack(data []byte) (*contracts.AuditReport, *Manifest, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, nil, fmt.Errorf("audit: open pack: %w", err)
	}
	files := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, nil, fmt.Errorf("audit: open %s: %w", f.Name, err)
		}
		b, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, nil, fmt.Errorf("audit: read %s: %w", f.Name, err)
		}
		files[f.Name] = b
	}

	raw, ok := files[PackManifest]
	if !ok {
		return nil, nil, fmt.Errorf("%w: missing %s", ErrPackCorrupt, PackManifest)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("audit: decode manifest: %w", err)
	}
	for _, name := range []string{PackReport, PackEvents} {
		if _, ok := m.Files[name]; !ok {
			return nil, nil, fmt.Errorf("%w: manifest lists no hash for %s", ErrPackCorrupt, name)
		}
	}
	for name, want := range m.Files {
		b, ok := files[name]
		if !ok {
			return nil, nil, fmt.Errorf("%w: missing %s", ErrPackCorrupt, name)
		}
		if got := canonicalize.HashBytes(b); got != want {
			return nil, nil, fmt.Errorf("%w: %s hash %s, manifest %s", ErrPackCorrupt, name, got, want)
		}
	}

	var report contracts.AuditReport
	if err := json.Unmarshal(files[PackReport], &report); err != nil {
		return nil, nil, fmt.Errorf("audit: decode report: %w", err)
	}
	if report.Digest != m.Digest {
		return nil, nil, fmt.Errorf("%w: report digest %s, manifest %s", ErrPackCorrupt, report.Digest, m.Digest)
	}
	if err := VerifyReport(&report); err != nil {
		return nil, nil, err
	}
	return &report, &m, nil
}
