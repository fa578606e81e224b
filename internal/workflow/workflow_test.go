package workflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paramWorkflow() Workflow {
	return Workflow{
		Name:     "send-email",
		StartURL: "https://mail.example.com/?to={{recipient}}",
		Parameters: []Parameter{
			{Name: "recipient", Label: "Recipient"},
			{Name: "subject", Default: "Hello"},
		},
		Steps: []Step{
			{Action: ActionType, Text: "{{recipient}}", Element: Descriptor{AriaLabel: "To"}},
			{Action: ActionType, Text: "{{subject}}", Element: Descriptor{Name: "subjectbox"}},
			{Action: ActionClick, Element: Descriptor{Text: "Send"}, Description: "Click Send"},
		},
	}
}

func TestResolveSubstitutesEverywhere(t *testing.T) {
	wf := paramWorkflow()
	resolved, err := wf.Resolve(map[string]string{"recipient": "alice@example.com"})
	require.NoError(t, err)

	assert.Equal(t, "https://mail.example.com/?to=alice@example.com", resolved.StartURL)
	assert.Equal(t, "alice@example.com", resolved.Steps[0].Text)
	assert.Equal(t, "Hello", resolved.Steps[1].Text, "default applies when value not supplied")

	// The original workflow is untouched.
	assert.Equal(t, "{{recipient}}", wf.Steps[0].Text)
}

func TestResolveMissingRequiredParameter(t *testing.T) {
	_, err := paramWorkflow().Resolve(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required parameters: recipient")
}

func TestRequiredParameters(t *testing.T) {
	assert.Equal(t, []string{"recipient"}, paramWorkflow().RequiredParameters())
	assert.Empty(t, Workflow{}.RequiredParameters())
}

func TestInstructionListsSteps(t *testing.T) {
	wf := paramWorkflow()
	resolved, err := wf.Resolve(map[string]string{"recipient": "bob@example.com"})
	require.NoError(t, err)

	text := resolved.Instruction()
	assert.Contains(t, text, "1. TYPE: 'bob@example.com' into the 'To' field")
	assert.Contains(t, text, "2. TYPE: 'Hello'")
	assert.Contains(t, text, "3. CLICK: the element with text 'Send'")
	assert.Contains(t, text, "Do not add extra steps")
}

func TestInstructionMarksRichTextFields(t *testing.T) {
	wf := Workflow{
		Name: "w",
		Steps: []Step{
			{Action: ActionType, Text: "body", Element: Descriptor{AriaLabel: "Message Body", ContentEditable: true}},
		},
	}
	assert.Contains(t, wf.Instruction(), "rich text field")
}

func TestStoreRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir(), zerolog.Nop())
	wf := paramWorkflow()
	wf.Steps[2].Coordinates = []int{720, 820}
	require.NoError(t, store.Save(wf))

	loaded, err := store.Load("send-email")
	require.NoError(t, err)
	assert.Equal(t, wf.Name, loaded.Name)
	assert.Equal(t, wf.Parameters, loaded.Parameters)
	assert.Equal(t, wf.Steps, loaded.Steps)
}

func TestStoreLoadMissing(t *testing.T) {
	store := NewStore(t.TempDir(), zerolog.Nop())
	_, err := store.Load("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreListSortedAndSkipsBroken(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, zerolog.Nop())
	require.NoError(t, store.Save(Workflow{Name: "beta", Steps: []Step{{Action: ActionKey, Key: "Enter"}}}))
	require.NoError(t, store.Save(Workflow{Name: "alpha", Steps: []Step{{Action: ActionKey, Key: "Enter"}}}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("steps: ["), 0o644))

	list, err := store.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].Name)
	assert.Equal(t, "beta", list[1].Name)
}

func TestStoreDelete(t *testing.T) {
	store := NewStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, store.Save(Workflow{Name: "tmp", Steps: []Step{{Action: ActionKey, Key: "Enter"}}}))
	require.NoError(t, store.Delete("tmp"))
	assert.ErrorIs(t, store.Delete("tmp"), ErrNotFound)
}

func TestStoreSanitizesNames(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, zerolog.Nop())
	require.NoError(t, store.Save(Workflow{Name: "a/b", Steps: []Step{{Action: ActionKey, Key: "Enter"}}}))
	_, err := os.Stat(filepath.Join(dir, "a_b.yaml"))
	assert.NoError(t, err)
}
