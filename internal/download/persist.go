package download

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/surge-downloader/sdm/internal/engine/transfer"
	"github.com/surge-downloader/sdm/internal/engine/types"
	"github.com/surge-downloader/sdm/internal/utils"
)

// State file format, one task per line:
//
//	"url" "destination" downloaded total status http_status error_kind created_at ended_at id
//
// URL and destination are Go-quoted strings; timestamps are Unix seconds
// (0 for unset). The trailing task id is optional; lines without it load
// with a fresh one. Blank lines are skipped and loading stops at the first
// malformed line.

const numericFields = 7

var errMalformedLine = errors.New("malformed state line")

// encodeTask writes t as one state line
func encodeTask(w io.Writer, t *Task) error {
	_, err := fmt.Fprintf(w, "%s %s %d %d %d %d %d %d %d %s\n",
		strconv.Quote(t.URL()),
		strconv.Quote(t.Destination()),
		t.DownloadedBytes(),
		t.TotalBytes(),
		int32(t.Status()),
		t.HTTPStatus(),
		int(t.ErrorKind()),
		unixSeconds(t.CreatedAt()),
		unixSeconds(t.EndedAt()),
		t.ID(),
	)
	return err
}

// decodeTask parses one state line into a task bound to client
func decodeTask(line string, client *transfer.Client) (*Task, error) {
	url, rest, err := takeQuoted(line)
	if err != nil {
		return nil, err
	}
	dest, rest, err := takeQuoted(rest)
	if err != nil {
		return nil, err
	}

	fields := strings.Fields(rest)
	var id string
	if len(fields) == numericFields+1 {
		id = fields[numericFields]
		if _, err := uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("%w: task id: %v", errMalformedLine, err)
		}
		fields = fields[:numericFields]
	}
	if len(fields) != numericFields {
		return nil, fmt.Errorf("%w: want %d numeric fields, got %d", errMalformedLine, numericFields, len(fields))
	}
	var nums [numericFields]int64
	for i, f := range fields {
		n, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: field %d: %v", errMalformedLine, i+3, err)
		}
		nums[i] = n
	}

	t := NewTask(url, dest, client)
	if id != "" {
		t.id = id
	}
	t.downloaded.Store(nums[0])
	t.total.Store(nums[1])
	t.status.Store(int32(types.StatusFromInt(int(nums[2]))))
	t.httpStatus.Store(int32(nums[3]))
	t.errKind.Store(int32(types.ErrorKindFromInt(int(nums[4]))))
	t.createdAt = fromUnixSeconds(nums[5])
	t.endedAt = fromUnixSeconds(nums[6])

	if t.Status() == types.StatusCompleted {
		t.setProgress(100)
	} else {
		t.updateProgress(nums[0], nums[1])
	}
	return t, nil
}

// takeQuoted splits a leading quoted string off s
func takeQuoted(s string) (string, string, error) {
	s = strings.TrimLeft(s, " ")
	quoted, err := strconv.QuotedPrefix(s)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", errMalformedLine, err)
	}
	value, err := strconv.Unquote(quoted)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", errMalformedLine, err)
	}
	return value, s[len(quoted):], nil
}

func unixSeconds(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnixSeconds(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}

// saveLocked atomically rewrites the state file
func (m *Manager) saveLocked() error {
	dir := filepath.Dir(m.statePath)
	tmp, err := os.CreateTemp(dir, filepath.Base(m.statePath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }() // no-op once renamed

	w := bufio.NewWriter(tmp)
	for _, list := range m.collections() {
		for _, t := range *list {
			if err := encodeTask(w, t); err != nil {
				_ = tmp.Close()
				return fmt.Errorf("failed to write state: %w", err)
			}
		}
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close state: %w", err)
	}
	if err := os.Rename(tmpPath, m.statePath); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// loadLocked files every persisted task into the collection matching its
// recorded status
func (m *Manager) loadLocked() {
	n, err := readTasks(m.statePath, m.client, func(t *Task) {
		if list := m.collection(t.Status()); list != nil {
			*list = append(*list, t)
		}
	})
	if err != nil && !os.IsNotExist(err) {
		utils.Debug("Manager: failed to read state: %v", err)
	}
	utils.Debug("Manager: loaded %d tasks from %s", n, m.statePath)
}

// Snapshot is a read-only copy of a state file, grouped by collection.
// Its tasks are not bound to a transfer client and must not be run.
type Snapshot struct {
	Queued    []*Task
	Active    []*Task
	Paused    []*Task
	Completed []*Task
	Failed    []*Task
}

// ReadSnapshot loads the state file at path without starting a manager.
// A missing file yields an empty snapshot.
func ReadSnapshot(path string) (Snapshot, error) {
	var snap Snapshot
	_, err := readTasks(path, nil, func(t *Task) {
		switch t.Status() {
		case types.StatusQueued:
			snap.Queued = append(snap.Queued, t)
		case types.StatusActive:
			snap.Active = append(snap.Active, t)
		case types.StatusPaused:
			snap.Paused = append(snap.Paused, t)
		case types.StatusCompleted:
			snap.Completed = append(snap.Completed, t)
		case types.StatusFailed:
			snap.Failed = append(snap.Failed, t)
		}
	})
	if err != nil && !os.IsNotExist(err) {
		return snap, err
	}
	return snap, nil
}

// readTasks decodes the state file line by line. A malformed line ends
// the read without an error; everything before it is kept.
func readTasks(path string, client *transfer.Client, fn func(*Task)) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	loaded, lineNo := 0, 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		t, err := decodeTask(line, client)
		if err != nil {
			utils.Debug("state load stopped at line %d: %v", lineNo, err)
			return loaded, nil
		}
		fn(t)
		loaded++
	}
	if err := scanner.Err(); err != nil {
		utils.Debug("state load stopped: %v", err)
	}
	return loaded, nil
}
