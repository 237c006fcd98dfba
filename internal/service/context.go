// Package service 包含了应用的业务逻辑层。
package service

import (
	"strings"
	"unicode/utf8"

	"ragchat-go/internal/model"
)

// contextDelimiter 分隔上下文中的不同文档片段。
const contextDelimiter = "\n\n"

// assembleContext 按命中顺序拼接文档正文，构造不超过 maxChars 个字符
// （按 rune 计数）的上下文文本。预算耗尽时截断当前文档而不是整篇丢弃，
// 因此排名靠前的文档永远不会因为后续预算不足而消失。
// 返回上下文文本与实际贡献了内容的文档 id（保持命中顺序，未去重）。
// hits 为空或 maxChars<=0 时返回空文本。
func assembleContext(hits []model.SearchHit, maxChars int) (string, []string) {
	if len(hits) == 0 || maxChars <= 0 {
		return "", nil
	}

	var b strings.Builder
	var usedIDs []string
	remaining := maxChars

	for _, hit := range hits {
		if hit.Content == "" {
			continue
		}

		sep := ""
		if b.Len() > 0 {
			sep = contextDelimiter
		}
		avail := remaining - utf8.RuneCountInString(sep)
		if avail <= 0 {
			break
		}

		content := []rune(hit.Content)
		if len(content) > avail {
			// 截断最后一篇入选文档
			b.WriteString(sep)
			b.WriteString(string(content[:avail]))
			usedIDs = append(usedIDs, hit.DocumentID)
			remaining = 0
			break
		}

		b.WriteString(sep)
		b.WriteString(hit.Content)
		usedIDs = append(usedIDs, hit.DocumentID)
		remaining = avail - len(content)
		if remaining == 0 {
			break
		}
	}

	return b.String(), usedIDs
}

// dedupeOrdered 去重并保持首次出现的顺序。
func dedupeOrdered(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}
