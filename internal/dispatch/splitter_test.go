package dispatch_test

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/trendwire/trendwire/internal/dispatch"
	"github.com/trendwire/trendwire/internal/models"
)

const headerReserve = 16

func block(key, text string, atomic bool) models.ContentBlock {
	return models.ContentBlock{Key: key, Text: text, Priority: models.BlockPriority(key), Atomic: atomic}
}

func TestSplitKeepsPriorityOrder(t *testing.T) {
	blocks := map[string]models.ContentBlock{
		models.BlockTrendCompare: block(models.BlockTrendCompare, "趋势对比", false),
		models.BlockAIAnalysis:   block(models.BlockAIAnalysis, "AI 研判", true),
		models.BlockHotTopics:    block(models.BlockHotTopics, "热点", false),
	}

	messages := dispatch.Split(blocks, 4000)
	require.Len(t, messages, 3)
	require.Equal(t, models.BlockHotTopics, messages[0].Key)
	require.Equal(t, models.BlockAIAnalysis, messages[1].Key)
	require.Equal(t, models.BlockTrendCompare, messages[2].Key)
	require.Less(t, messages[0].Priority, messages[1].Priority)
	require.Less(t, messages[1].Priority, messages[2].Priority)
}

func TestSplitRoundTrip(t *testing.T) {
	paras := make([]string, 12)
	for i := range paras {
		paras[i] = fmt.Sprintf("段落%d：%s", i, strings.Repeat("热点新闻内容", 10))
	}
	text := strings.Join(paras, "\n\n")

	budget := 400
	messages := dispatch.Split(map[string]models.ContentBlock{
		models.BlockHotTopics: block(models.BlockHotTopics, text, false),
	}, budget)

	require.Greater(t, len(messages), 1)
	var parts []string
	for _, m := range messages {
		require.LessOrEqual(t, len(m.Text), budget-headerReserve)
		require.Equal(t, models.BlockHotTopics, m.Key)
		parts = append(parts, m.Text)
	}
	require.Equal(t, text, strings.Join(parts, "\n\n"), "concatenation restores the block text")
}

func TestSplitNeverCutsMidRune(t *testing.T) {
	// One long line of multi-byte text forces the rune-level hard wrap.
	line := strings.Repeat("热", 500)
	messages := dispatch.Split(map[string]models.ContentBlock{
		models.BlockHotTopics: block(models.BlockHotTopics, line, false),
	}, 100)

	require.Greater(t, len(messages), 1)
	var total int
	for _, m := range messages {
		require.True(t, utf8.ValidString(m.Text))
		require.LessOrEqual(t, len(m.Text), 100-headerReserve)
		total += utf8.RuneCountInString(m.Text)
	}
	require.Equal(t, 500, total)
}

func TestSplitAtomicStaysWhole(t *testing.T) {
	text := strings.Repeat("AI研判段落。\n\n", 20)
	messages := dispatch.Split(map[string]models.ContentBlock{
		models.BlockAIAnalysis: block(models.BlockAIAnalysis, text, true),
	}, 4000)

	require.Len(t, messages, 1, "atomic block within budget is exactly one message")
}

func TestSplitAtomicOverHardLimitDegrades(t *testing.T) {
	paras := make([]string, 10)
	for i := range paras {
		paras[i] = fmt.Sprintf("研判段落%d：%s", i, strings.Repeat("分析", 30))
	}
	text := strings.Join(paras, "\n\n")

	messages := dispatch.Split(map[string]models.ContentBlock{
		models.BlockAIAnalysis: block(models.BlockAIAnalysis, text, true),
	}, 300)

	require.Greater(t, len(messages), 1, "over the hard limit the block is paragraph-split rather than dropped")
	for _, m := range messages {
		require.LessOrEqual(t, len(m.Text), 300-headerReserve)
	}
}

func TestSplitSkipsEmptyBlocks(t *testing.T) {
	messages := dispatch.Split(map[string]models.ContentBlock{
		models.BlockHotTopics: block(models.BlockHotTopics, "  \n ", false),
	}, 4000)
	require.Empty(t, messages)
}
