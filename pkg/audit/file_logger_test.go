package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLoggerWritesNDJSON(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewFileLogger(dir)
	require.NoError(t, err)

	principalID := int64(42)
	first := NewEvent(context.Background(), EventTypeLoginSuccess, EventStatusSuccess)
	first.PrincipalID = &principalID
	first.Username = "jdoe"
	second := NewEvent(context.Background(), EventTypeLogout, EventStatusSuccess)

	require.NoError(t, logger.Log(context.Background(), first))
	require.NoError(t, logger.Log(context.Background(), second))
	require.NoError(t, logger.Close())

	file, err := os.Open(filepath.Join(dir, "audit.log"))
	require.NoError(t, err)
	defer file.Close()

	var events []Event
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var event Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &event))
		events = append(events, event)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, events, 2)
	assert.Equal(t, EventTypeLoginSuccess, events[0].EventType)
	assert.Equal(t, "jdoe", events[0].Username)
	assert.Equal(t, EventTypeLogout, events[1].EventType)
}

func TestFileLoggerAppendsAcrossReopens(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewFileLogger(dir)
	require.NoError(t, err)
	require.NoError(t, logger.Log(context.Background(), NewEvent(context.Background(), EventTypeTokenIssued, EventStatusSuccess)))
	require.NoError(t, logger.Close())

	logger, err = NewFileLogger(dir)
	require.NoError(t, err)
	require.NoError(t, logger.Log(context.Background(), NewEvent(context.Background(), EventTypeTokenRevoked, EventStatusSuccess)))
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(filepath.Join(dir, "audit.log"))
	require.NoError(t, err)

	lines := 0
	for _, b := range data {
		if b == '\n' {
			lines++
		}
	}
	assert.Equal(t, 2, lines)
}

func TestFileLoggerRejectsWritesAfterClose(t *testing.T) {
	logger, err := NewFileLogger(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, logger.Close())

	err = logger.Log(context.Background(), NewEvent(context.Background(), EventTypeLogout, EventStatusSuccess))
	assert.Error(t, err)
}
