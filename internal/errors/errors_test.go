package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSyncErrorFormatting(t *testing.T) {
	e := New(CategoryGit, SeverityFatal, "checkout failed")
	require.Equal(t, "git (fatal): checkout failed", e.Error())

	cause := stderrors.New("reference not found")
	w := Wrap(cause, CategoryGit, SeverityFatal, "checkout failed")
	require.Contains(t, w.Error(), "reference not found")
	require.Equal(t, cause, stderrors.Unwrap(w))
}

func TestCategoryAndStage(t *testing.T) {
	e := Fatal(CategorySync, "conversion script failed").WithStage("sync")
	require.True(t, IsCategory(e, CategorySync))
	require.False(t, IsCategory(e, CategoryGit))
	require.Equal(t, CategorySync, GetCategory(e))
	require.Equal(t, "sync", GetStage(e))

	plain := stderrors.New("plain")
	require.Equal(t, CategoryInternal, GetCategory(plain))
	require.Empty(t, GetStage(plain))
}

func TestIsFatal(t *testing.T) {
	require.False(t, IsFatal(nil))
	require.True(t, IsFatal(stderrors.New("unclassified")))
	require.True(t, IsFatal(Fatal(CategoryBuilder, "failed to launch")))
	require.False(t, IsFatal(New(CategoryGit, SeverityWarning, "push rejected")))
}

func TestWithContext(t *testing.T) {
	e := Fatal(CategoryProvision, "step failed").WithContext("step", "build style")
	require.Equal(t, "build style", e.Context["step"])
}
