package prompt

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mirascope/mirascope-sub001/content"
)

func TestTemplate_Render(t *testing.T) {
	template, err := Parse("greeting", "Hello {{name}}, welcome to {{place}}.")
	require.NoError(t, err)

	result, err := template.Render(map[string]string{"name": "Ada", "place": "the library"})
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada, welcome to the library.", result)
}

func TestTemplate_Render_MissingVariable(t *testing.T) {
	template, err := Parse("greeting", "Hello {{name}}.")
	require.NoError(t, err)

	_, err = template.Render(map[string]string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "greeting")
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse("broken", "Hello {{#section}} unclosed")
	assert.Error(t, err)
}

func TestParseFS_WithPartials(t *testing.T) {
	fsys := fstest.MapFS{
		"prompts/review/initial.mustache": &fstest.MapFile{
			Data: []byte("Review this diff:\n{{>diff_rules}}\n{{diff}}"),
		},
		"prompts/review/diff_rules.mustache": &fstest.MapFile{
			Data: []byte("Be specific."),
		},
	}

	template, err := ParseFS(fsys, "prompts/review/initial")
	require.NoError(t, err)

	result, err := template.Render(map[string]string{"diff": "+1 -1"})
	require.NoError(t, err)
	assert.Equal(t, "Review this diff:\nBe specific.\n+1 -1", result)
}

func TestTemplate_Messages(t *testing.T) {
	template := MustParse("q", "What is {{topic}}?")

	user, err := template.UserMessage(map[string]string{"topic": "recursion"})
	require.NoError(t, err)
	assert.Equal(t, content.RoleUser, user.Role)
	assert.Equal(t, "What is recursion?", user.Text())

	system, err := template.SystemMessage(map[string]string{"topic": "brevity"})
	require.NoError(t, err)
	assert.Equal(t, content.RoleSystem, system.Role)
}
