package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRoot() *cobra.Command {
	root := &cobra.Command{Use: "helpdeskd", Short: "daemon"}
	AddHelpJSONFlag(root)

	knowledge := &cobra.Command{Use: "knowledge", Short: "knowledge commands"}
	list := &cobra.Command{Use: "list", Short: "list entries", Run: func(*cobra.Command, []string) {}}
	list.Flags().String("category", "", "category filter")
	list.Flags().StringP("output", "o", "text", "output format")
	sync := &cobra.Command{Use: "sync", Run: func(*cobra.Command, []string) {}}
	sync.Flags().String("prefix", "", "key prefix")
	_ = sync.MarkFlagRequired("prefix")
	hidden := &cobra.Command{Use: "debug", Hidden: true, Run: func(*cobra.Command, []string) {}}
	knowledge.AddCommand(list, sync, hidden)

	root.AddCommand(knowledge)
	return root
}

func TestGenerateSchema(t *testing.T) {
	schema := GenerateSchema(testRoot())

	assert.Equal(t, "helpdeskd", schema.Name)
	assert.Empty(t, schema.Flags, "help-json is omitted")
	require.Len(t, schema.Subcommands, 1)

	knowledge := schema.Subcommands[0]
	require.Len(t, knowledge.Subcommands, 2, "hidden commands are skipped")

	list := knowledge.Subcommands[0]
	assert.Equal(t, "list", list.Name)
	require.Len(t, list.Flags, 2)
	assert.Equal(t, FlagSchema{Name: "category", Type: "string", Description: "category filter"}, list.Flags[0])
	assert.Equal(t, "o", list.Flags[1].Shorthand)
	assert.Equal(t, "text", list.Flags[1].Default)

	sync := knowledge.Subcommands[1]
	require.Len(t, sync.Flags, 1)
	assert.True(t, sync.Flags[0].Required)
}

func TestWriteHelpJSON(t *testing.T) {
	t.Run("absent", func(t *testing.T) {
		var buf bytes.Buffer
		handled, err := WriteHelpJSON(testRoot(), []string{"knowledge", "list"}, &buf)
		require.NoError(t, err)
		assert.False(t, handled)
		assert.Empty(t, buf.String())
	})

	t.Run("targets subcommand", func(t *testing.T) {
		var buf bytes.Buffer
		handled, err := WriteHelpJSON(testRoot(), []string{"knowledge", "list", "--help-json"}, &buf)
		require.NoError(t, err)
		assert.True(t, handled)

		var schema CommandSchema
		require.NoError(t, json.Unmarshal(buf.Bytes(), &schema))
		assert.Equal(t, "list", schema.Name)
	})

	t.Run("unknown subcommand falls back to parent", func(t *testing.T) {
		var buf bytes.Buffer
		_, err := WriteHelpJSON(testRoot(), []string{"knowledge", "nope", "--help-json"}, &buf)
		require.NoError(t, err)

		var schema CommandSchema
		require.NoError(t, json.Unmarshal(buf.Bytes(), &schema))
		assert.Equal(t, "knowledge", schema.Name)
	})
}
