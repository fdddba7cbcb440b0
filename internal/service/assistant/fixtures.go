package assistant

import (
	"time"

	"tcmhub/internal/models"
)

// FixtureSessions is the demo history every owner starts with when fixtures
// are enabled.
func FixtureSessions(ownerID string, now time.Time) []*models.ChatSession {
	day := 24 * time.Hour
	return []*models.ChatSession{
		{
			ID:           "s1",
			OwnerID:      ownerID,
			Title:        "頭痛舒緩諮詢",
			LastModified: now.Add(-day),
			Tags:         []string{"頭痛", "穴位"},
			Messages: []models.Message{
				{ID: "m1", Role: models.MessageRoleUser, Text: "我有偏頭痛，按什麼穴位好？", CreatedAt: now.Add(-day)},
				{ID: "m2", Role: models.MessageRoleAssistant, Text: "建議您可以按摩太陽穴和合谷穴...", CreatedAt: now.Add(-day + 10*time.Second)},
			},
		},
		{
			ID:           "s2",
			OwnerID:      ownerID,
			Title:        "冬季進補建議",
			LastModified: now.Add(-2 * day),
			Tags:         []string{"食療", "冬季"},
			Messages: []models.Message{
				{ID: "m3", Role: models.MessageRoleUser, Text: "冬天手腳冰冷吃什麼好？", CreatedAt: now.Add(-2 * day)},
				{ID: "m4", Role: models.MessageRoleAssistant, Text: "可以多吃羊肉、當歸生薑羊肉湯...", CreatedAt: now.Add(-2*day + 100*time.Second)},
			},
		},
	}
}
