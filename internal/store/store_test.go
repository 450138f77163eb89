package store_test

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secretsanta/internal/domain"
	"secretsanta/internal/store"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const employees = `Employee_Name,Employee_EmailID
Hamish Murray,hamish.murray@acme.com
Layla Graham,layla.graham@acme.com
Matthew King,matthew.king@acme.com
`

func requireValidation(t *testing.T, err error, row int, field string) *store.ValidationError {
	t.Helper()
	var verr *store.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, row, verr.Row)
	assert.Equal(t, field, verr.Field)
	return verr
}

func TestLoadParticipants(t *testing.T) {
	path := writeFile(t, "employees.csv", employees)
	ps, err := store.Store{}.LoadParticipants(path)
	require.NoError(t, err)
	assert.Equal(t, []domain.Participant{
		{Name: "Hamish Murray", Email: "hamish.murray@acme.com"},
		{Name: "Layla Graham", Email: "layla.graham@acme.com"},
		{Name: "Matthew King", Email: "matthew.king@acme.com"},
	}, ps)
}

func TestLoadParticipantsValidation(t *testing.T) {
	cases := []struct {
		name    string
		content string
		row     int
		field   string
		msg     string
	}{
		{"empty", "Employee_Name,Employee_EmailID\n", 0, "", "empty"},
		{"too few", "Employee_Name,Employee_EmailID\nA,a@x\nB,b@x\n", 0, "", "more than 2"},
		{"blank name", "Employee_Name,Employee_EmailID\nA,a@x\n  ,b@x\nC,c@x\n", 2, store.ColEmployeeName, "row 2"},
		{"blank email", "Employee_Name,Employee_EmailID\nA,a@x\nB,b@x\nC,\n", 3, store.ColEmployeeEmail, "row 3"},
		{"missing column", "Employee_Name\nA\nB\nC\n", 1, store.ColEmployeeEmail, "row 1"},
		{"duplicate", "Employee_Name,Employee_EmailID\nA,a@x\nB,b@x\nC,c@x\nD,b@x\n", 4, store.ColEmployeeEmail, "'b@x' at row 4"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeFile(t, "employees.csv", tc.content)
			_, err := store.Store{}.LoadParticipants(path)
			verr := requireValidation(t, err, tc.row, tc.field)
			assert.Contains(t, verr.Error(), tc.msg)
		})
	}
}

func TestEmailsAreCaseSensitive(t *testing.T) {
	path := writeFile(t, "employees.csv", "Employee_Name,Employee_EmailID\nA,a@x\nB,A@x\nC,c@x\n")
	ps, err := store.Store{}.LoadParticipants(path)
	require.NoError(t, err)
	assert.Len(t, ps, 3)
}

func TestLoadParticipantsMissingFile(t *testing.T) {
	_, err := store.Store{}.LoadParticipants(filepath.Join(t.TempDir(), "nope.csv"))
	require.ErrorIs(t, err, store.ErrFileNotFound)
	assert.True(t, store.IsValidation(err))
}

func TestLoadPriorAssignments(t *testing.T) {
	ps, err := store.Store{}.LoadPriorAssignments("")
	require.NoError(t, err)
	assert.Empty(t, ps)

	empty := writeFile(t, "prior.csv", "")
	ps, err = store.Store{}.LoadPriorAssignments(empty)
	require.NoError(t, err)
	assert.Empty(t, ps)

	headerOnly := writeFile(t, "prior.csv", "Employee_Name,Employee_EmailID,Secret_Child_Name,Secret_Child_EmailID\n")
	ps, err = store.Store{}.LoadPriorAssignments(headerOnly)
	require.NoError(t, err)
	assert.Empty(t, ps)

	full := writeFile(t, "prior.csv", "Employee_Name,Employee_EmailID,Secret_Child_Name,Secret_Child_EmailID\nA,a@x,B,b@x\nB,b@x,A,a@x\n")
	ps, err = store.Store{}.LoadPriorAssignments(full)
	require.NoError(t, err)
	assert.Equal(t, []domain.PriorAssignment{
		{GiverName: "A", GiverEmail: "a@x", RecipientName: "B", RecipientEmail: "b@x"},
		{GiverName: "B", GiverEmail: "b@x", RecipientName: "A", RecipientEmail: "a@x"},
	}, ps)
}

func TestLoadPriorAssignmentsRequiresAllFields(t *testing.T) {
	path := writeFile(t, "prior.csv", "Employee_Name,Employee_EmailID,Secret_Child_Name,Secret_Child_EmailID\nA,a@x,B,b@x\nB,b@x,,a@x\n")
	_, err := store.Store{}.LoadPriorAssignments(path)
	verr := requireValidation(t, err, 2, store.ColSecretChildName)
	assert.Contains(t, verr.Error(), "last year's assignment file")

	_, err = store.Store{}.LoadPriorAssignments(filepath.Join(t.TempDir(), "missing.csv"))
	require.ErrorIs(t, err, store.ErrFileNotFound)
}

func sampleAssignments() []domain.Assignment {
	return []domain.Assignment{
		{GiverName: "Ann", GiverEmail: "a@x", RecipientName: "Bob", RecipientEmail: "b@x"},
		{GiverName: "Bob", GiverEmail: "b@x", RecipientName: "Cid", RecipientEmail: "c@x"},
		{GiverName: "Cid, Jr.", GiverEmail: "c@x", RecipientName: "Ann", RecipientEmail: "a@x"},
	}
}

func TestSaveAssignmentsRoundTrip(t *testing.T) {
	for _, name := range []string{"result.csv", "result.xlsx"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			s := store.Store{}
			want := sampleAssignments()
			require.NoError(t, s.SaveAssignments(path, want))

			got, err := s.LoadPriorAssignments(path)
			require.NoError(t, err)
			require.Len(t, got, len(want))
			for i, a := range want {
				assert.Equal(t, a.Prior(), got[i])
			}
		})
	}
}

func TestSaveAssignmentsColumnOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.csv")
	require.NoError(t, store.Store{}.SaveAssignments(path, sampleAssignments()[:1]))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Employee_Name,Employee_EmailID,Secret_Child_Name,Secret_Child_EmailID\nAnn,a@x,Bob,b@x\n", string(data))
}

func TestSaveAssignmentsFileMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permission bits")
	}
	dir := t.TempDir()
	s := store.Store{}

	fresh := filepath.Join(dir, "result.csv")
	require.NoError(t, s.SaveAssignments(fresh, sampleAssignments()))
	fi, err := os.Stat(fresh)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), fi.Mode().Perm())

	existing := filepath.Join(dir, "shared.csv")
	require.NoError(t, os.WriteFile(existing, []byte("old\n"), 0o600))
	require.NoError(t, os.Chmod(existing, 0o640))
	require.NoError(t, s.SaveAssignments(existing, sampleAssignments()))
	fi, err = os.Stat(existing)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), fi.Mode().Perm())
}

func TestSaveAssignmentsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.csv")
	err := store.Store{}.SaveAssignments(path, nil)
	require.ErrorIs(t, err, store.ErrNoAssignments)
	_, statErr := os.Stat(path)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestSaveAssignmentsUnwritableDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing-dir", "result.csv")
	err := store.Store{}.SaveAssignments(path, sampleAssignments())
	require.Error(t, err)
	assert.False(t, store.IsValidation(err))
}

func TestValidateParticipants(t *testing.T) {
	err := store.ValidateParticipants([]domain.Participant{{Name: "A", Email: "a@x"}, {Name: "B", Email: "b@x"}, {Name: "C", Email: "a@x"}})
	verr := requireValidation(t, err, 3, store.ColEmployeeEmail)
	assert.Empty(t, verr.Source)
}
