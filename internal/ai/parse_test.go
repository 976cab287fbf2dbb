package ai_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trendwire/trendwire/internal/ai"
)

func TestParseStructured(t *testing.T) {
	text := `{"core_trends":"市场聚焦降准","sentiment_controversy":"偏暖","signals":"出口异动","rss_insights":"海外关注","outlook_strategy":"短期偏多","items":[{"name":"宁德时代","code":"300750","sentiment":"Positive"}]}`

	got := ai.Parse(text)
	require.True(t, got.Structured)
	require.Equal(t, "市场聚焦降准", got.Narrative.CoreTrends)
	require.Equal(t, "短期偏多", got.Narrative.OutlookStrategy)
	require.Len(t, got.Items, 1)
	require.Equal(t, "300750", got.Items[0].Code)
}

func TestParseFencedJSON(t *testing.T) {
	text := "```json\n{\"core_trends\":\"主线明确\",\"items\":[]}\n```"

	got := ai.Parse(text)
	require.True(t, got.Structured)
	require.Equal(t, "主线明确", got.Narrative.CoreTrends)
}

func TestParseAlternateItemsKey(t *testing.T) {
	text := `{"core_trends":"x","stock_analysis":[{"name":"腾讯控股","code":"00700"}]}`

	got := ai.Parse(text)
	require.True(t, got.Structured)
	require.Len(t, got.Items, 1)
	require.Equal(t, "00700", got.Items[0].Code)
}

func TestParseFallbackToRaw(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"prose", "今天市场的主线是降准，整体情绪偏暖。"},
		{"broken json", `{"core_trends": "未闭合`},
		{"json without narrative", `{"items":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ai.Parse(tt.text)
			require.False(t, got.Structured)
			require.Equal(t, tt.text, got.Raw, "raw fallback keeps the full completion")
		})
	}
}
