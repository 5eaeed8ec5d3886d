package exec

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealCommandExecutor_Execute(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		command     string
		args        []string
		wantSuccess bool
		wantOutput  string
	}{
		{
			name:        "echo command",
			command:     "echo",
			args:        []string{"hello"},
			wantSuccess: true,
			wantOutput:  "hello\n",
		},
		{
			name:        "command with multiple args",
			command:     "echo",
			args:        []string{"hello", "world"},
			wantSuccess: true,
			wantOutput:  "hello world\n",
		},
		{
			name:        "invalid command",
			command:     "nonexistent_command_xyz123",
			wantSuccess: false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			executor := &RealCommandExecutor{}
			stdout, _, err := executor.Execute(context.Background(), tt.command, tt.args...)

			if tt.wantSuccess {
				require.NoError(t, err)
				assert.Equal(t, tt.wantOutput, string(stdout))
			} else {
				assert.Error(t, err)
				assert.True(t, IsNotInstalled(err))
			}
		})
	}
}

func TestRealCommandExecutor_RunWithStdin(t *testing.T) {
	t.Parallel()

	executor := DefaultExecutor()
	stdout, _, err := executor.Run(context.Background(), Command{
		Name:  "cat",
		Stdin: []byte("line1\nline2 🔐"),
	})
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2 🔐", string(stdout))
}

func TestRealCommandExecutor_RunWithEnv(t *testing.T) {
	t.Parallel()

	executor := DefaultExecutor()
	stdout, _, err := executor.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "printf %s \"$SECRETSPEC_EXEC_TEST\""},
		Env:  []string{"SECRETSPEC_EXEC_TEST=injected"},
	})
	require.NoError(t, err)
	assert.Equal(t, "injected", string(stdout))
}

func TestRealCommandExecutor_Stderr(t *testing.T) {
	t.Parallel()

	executor := DefaultExecutor()
	_, stderr, err := executor.Execute(context.Background(), "sh", "-c", "echo 'Vault is locked.' >&2; exit 1")
	require.Error(t, err)
	assert.False(t, IsNotInstalled(err))
	assert.True(t, strings.Contains(string(stderr), "Vault is locked"))
}

func TestRealCommandExecutor_ContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := DefaultExecutor().Execute(ctx, "sleep", "5")
	assert.Error(t, err)
}
