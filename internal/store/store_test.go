package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/qhlab/qcal/internal/errors"
	"github.com/qhlab/qcal/internal/quam"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "qcal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestActiveSnapshotEmptyStore(t *testing.T) {
	s := openTestStore(t)

	_, err := s.ActiveSnapshot()
	var notFound apperrors.StateNotFoundError
	assert.True(t, errors.As(err, &notFound), "empty store should return StateNotFoundError, got %v", err)
}

func TestSaveSnapshotLinksParents(t *testing.T) {
	s := openTestStore(t)
	m := quam.DefaultMachine(2)

	first, err := s.SaveSnapshot(m, Provenance{Node: "power_rabi_ef"})
	require.NoError(t, err)
	assert.Empty(t, first.ParentID, "first snapshot has no parent")

	m2 := m.Clone()
	m2.Qubits["q1"].XY.Operations["x180"].Amplitude = 0.2
	second, err := s.SaveSnapshot(m2, Provenance{Node: "power_rabi_ef"})
	require.NoError(t, err)
	assert.Equal(t, first.VersionID, second.ParentID, "second snapshot must link to first")

	active, err := s.ActiveSnapshot()
	require.NoError(t, err)
	assert.Equal(t, second.VersionID, active.VersionID)
	assert.InDelta(t, 0.2, active.Machine.Qubits["q1"].XY.Operations["x180"].Amplitude, 1e-12)
}

func TestSnapshotsAreImmutable(t *testing.T) {
	s := openTestStore(t)
	m := quam.DefaultMachine(1)

	snap, err := s.SaveSnapshot(m, Provenance{Node: "t2_echo"})
	require.NoError(t, err)

	// Mutating the machine after save must not affect the stored snapshot.
	m.Qubits["q1"].T2EchoSec = 99e-6

	reloaded, err := s.SnapshotByID(snap.VersionID)
	require.NoError(t, err)
	assert.Zero(t, reloaded.Machine.Qubits["q1"].T2EchoSec)
}

func TestSnapshotByIDUnknown(t *testing.T) {
	s := openTestStore(t)

	_, err := s.SnapshotByID("does-not-exist")
	var notFound apperrors.StateNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "does-not-exist", notFound.ID)
}

func TestHistory(t *testing.T) {
	s := openTestStore(t)
	m := quam.DefaultMachine(1)

	_, err := s.SaveSnapshot(m, Provenance{
		Node:     "power_rabi_ef",
		Outcomes: map[string]string{"q1": "successful"},
	})
	require.NoError(t, err)
	_, err = s.SaveSnapshot(m, Provenance{
		Node:     "iq_blobs_gef",
		RunID:    "run-2",
		Outcomes: map[string]string{"q1": "clamped"},
		Reason:   "fitted amplitude above drive ceiling",
	})
	require.NoError(t, err)

	entries, err := s.History(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Newest first.
	assert.Equal(t, "iq_blobs_gef", entries[0].Node)
	assert.Equal(t, "run-2", entries[0].RunID)
	assert.Equal(t, map[string]string{"q1": "clamped"}, entries[0].Outcomes)
	assert.Equal(t, "power_rabi_ef", entries[1].Node)
	assert.NotEmpty(t, entries[1].RunID, "run id is generated when absent")
}

func TestHistoryDefaultLimit(t *testing.T) {
	s := openTestStore(t)
	entries, err := s.History(0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
