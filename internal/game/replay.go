package game

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/ptcgai/referee-server-go/internal/game/model"
	"github.com/ptcgai/referee-server-go/internal/game/ops"
)

// recordingVersion is bumped when the file layout changes.
const recordingVersion = 1

// Recording is everything needed to rebuild a match: the state before the
// first logged operation and the audit log. Random operations carry their
// seeds, so replaying the log reproduces the match exactly.
type Recording struct {
	MatchID string
	Initial *model.GameState
	Entries []model.AuditEntry
}

// recordingMetadata heads a saved recording.
type recordingMetadata struct {
	MatchID    string
	Timestamp  time.Time
	Version    int
	EntryCount int
	Checksum   string
}

// Replay applies every entry to a copy of the initial state and returns the
// resulting state.
func (rec *Recording) Replay(logger *zap.Logger) (*model.GameState, error) {
	return rec.ReplayTo(len(rec.Entries), logger)
}

// ReplayTo applies the first n entries.
func (rec *Recording) ReplayTo(n int, logger *zap.Logger) (*model.GameState, error) {
	if rec.Initial == nil {
		return nil, fmt.Errorf("recording %s has no initial state", rec.MatchID)
	}
	if n < 0 || n > len(rec.Entries) {
		return nil, fmt.Errorf("entry %d out of range [0, %d]", n, len(rec.Entries))
	}
	state := rec.Initial.Clone()
	o := ops.New(state, logger)
	for _, e := range rec.Entries[:n] {
		if err := o.Apply(e); err != nil {
			return nil, fmt.Errorf("replay %s: %w", rec.MatchID, err)
		}
	}
	return state, nil
}

// Filename is the file name a recording is saved under.
func Filename(matchID string) string {
	return fmt.Sprintf("%s.replay", matchID)
}

// SaveToFile writes the recording as a gzipped gob stream into directory.
// The initial state is stored in its JSON form.
func (rec *Recording) SaveToFile(directory string) (string, error) {
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	initial, err := EncodeState(rec.Initial)
	if err != nil {
		return "", err
	}
	final, err := rec.Replay(nil)
	if err != nil {
		return "", err
	}
	sum, err := ComputeChecksum(final)
	if err != nil {
		return "", err
	}

	filename := filepath.Join(directory, Filename(rec.MatchID))
	file, err := os.Create(filename)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	gzipWriter := gzip.NewWriter(file)
	encoder := gob.NewEncoder(gzipWriter)

	metadata := recordingMetadata{
		MatchID:    rec.MatchID,
		Timestamp:  time.Now().UTC(),
		Version:    recordingVersion,
		EntryCount: len(rec.Entries),
		Checksum:   sum.Hash,
	}
	if err := encoder.Encode(&metadata); err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := encoder.Encode(initial); err != nil {
		return "", fmt.Errorf("failed to encode initial state: %w", err)
	}
	for i := range rec.Entries {
		if err := encoder.Encode(&rec.Entries[i]); err != nil {
			return "", fmt.Errorf("failed to encode entry %d: %w", i, err)
		}
	}
	if err := gzipWriter.Close(); err != nil {
		return "", fmt.Errorf("failed to flush recording: %w", err)
	}
	return filename, nil
}

// LoadRecording reads a file written by SaveToFile and verifies that the
// log replays to the recorded final state.
func LoadRecording(path string) (*Recording, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	gzipReader, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzipReader.Close()

	decoder := gob.NewDecoder(gzipReader)

	var metadata recordingMetadata
	if err := decoder.Decode(&metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if metadata.Version != recordingVersion {
		return nil, fmt.Errorf("unsupported recording version: %d", metadata.Version)
	}

	var initial []byte
	if err := decoder.Decode(&initial); err != nil {
		return nil, fmt.Errorf("failed to decode initial state: %w", err)
	}
	state, err := DecodeState(initial)
	if err != nil {
		return nil, err
	}

	rec := &Recording{MatchID: metadata.MatchID, Initial: state, Entries: make([]model.AuditEntry, 0, metadata.EntryCount)}
	for i := 0; i < metadata.EntryCount; i++ {
		var e model.AuditEntry
		if err := decoder.Decode(&e); err != nil {
			return nil, fmt.Errorf("failed to decode entry %d: %w", i, err)
		}
		rec.Entries = append(rec.Entries, e)
	}

	final, err := rec.Replay(nil)
	if err != nil {
		return nil, err
	}
	if ok, _ := VerifyChecksum(final, &Checksum{Hash: metadata.Checksum, Version: checksumVersion}); !ok {
		return nil, fmt.Errorf("recording %s does not replay to its saved checksum", metadata.MatchID)
	}
	return rec, nil
}
