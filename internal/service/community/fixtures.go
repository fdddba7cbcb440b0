package community

import (
	"time"

	"tcmhub/internal/models"
)

// FixturePosts is the demo forum content.
func FixturePosts(now time.Time) []*models.Post {
	return []*models.Post{
		{
			ID:       "p1",
			Title:    "請問失眠有什麼好的食療建議？",
			AuthorID: "u2",
			Category: "藥膳食療",
			Content:  "最近工作壓力大，晚上很難入睡，常常半夜醒來。聽說酸棗仁湯有效，請問大家有推薦的食譜或用法嗎？不想一直依賴褪黑激素。",
			Tags:     []string{"食療", "失眠", "心神不寧"},
			Likes:    24,
			Views:    342,
			Comments: []models.Comment{
				{ID: "c1", AuthorID: "u1", Text: "酸棗仁確實有安神作用。建議可以搭配百合和蓮子煮粥，效果會更溫和。如果症狀持續，建議還是要把脈診斷。", CreatedAt: now.Add(-time.Hour)},
				{ID: "c2", AuthorID: "u3", Text: "睡前做10分鐘的靜坐冥想，配合腹式呼吸，對放鬆很有幫助。", CreatedAt: now.Add(-30 * time.Minute)},
			},
			CreatedAt: now.Add(-2 * time.Hour),
			Status:    models.StatusPublished,
		},
		{
			ID:        "p2",
			Title:     "深入淺出：十二經絡與臟腑的關係",
			AuthorID:  "u1",
			Category:  "中醫理論",
			Content:   "經絡系統是人體氣血運行的通道。今天我們來探討一下手太陰肺經如何影響我們的呼吸系統與皮膚健康...",
			Tags:      []string{"中醫理論", "經絡", "養生"},
			Likes:     156,
			Views:     1205,
			Comments:  []models.Comment{},
			CreatedAt: now.Add(-24 * time.Hour),
			Status:    models.StatusPublished,
		},
		{
			ID:       "p3",
			Title:    "腎陰虛與腎陽虛的區別是什麼？",
			AuthorID: "u2",
			Category: "臨床經驗",
			Content:  "常常聽到這兩個名詞，但不知道具體症狀有什麼不同？怕冷是陽虛嗎？",
			Tags:     []string{"診斷", "陰陽", "基礎理論"},
			Likes:    12,
			Views:    560,
			Comments: []models.Comment{
				{ID: "c3", AuthorID: "u1", Text: "簡單來說：陽虛則寒（怕冷、手腳冰冷），陰虛則熱（手心發熱、口乾舌燥）。", CreatedAt: now.Add(-48 * time.Hour)},
			},
			CreatedAt: now.Add(-72 * time.Hour),
			Status:    models.StatusPublished,
		},
	}
}

// FixtureVideos is the demo video catalogue.
func FixtureVideos(now time.Time) []*models.Video {
	week := 7 * 24 * time.Hour
	return []*models.Video{
		{
			ID:           "v1",
			Title:        "居家常用五大穴位按摩教學",
			Description:  "學習合谷、足三里、內關等常用穴位的準確位置與按摩手法，緩解日常小病痛。",
			ThumbnailURL: "https://images.unsplash.com/photo-1543362906-acfc16c67564?auto=format&fit=crop&q=80&w=1000",
			Duration:     "12:30",
			AuthorID:     "u1",
			Views:        1200,
			Category:     "針灸推拿",
			Tags:         []string{"穴位", "居家護理", "疼痛"},
			Status:       models.StatusPublished,
			CreatedAt:    now.Add(-week),
			Likes:        89,
			Comments:     []models.Comment{},
		},
		{
			ID:           "v2",
			Title:        "【VIP】大師級氣功導引：八段錦全套詳解",
			Description:  "深入解析每一個動作的氣感與呼吸配合，這是付費會員專屬的高階課程。",
			ThumbnailURL: "https://images.unsplash.com/photo-1515023115689-5824739084f3?auto=format&fit=crop&q=80&w=1000",
			Duration:     "45:00",
			AuthorID:     "u3",
			Views:        5400,
			Category:     "氣功導引",
			Tags:         []string{"八段錦", "養生", "進階"},
			Paid:         true,
			Status:       models.StatusPublished,
			CreatedAt:    now.Add(-2 * week),
			Likes:        245,
			Comments:     []models.Comment{},
		},
		{
			ID:           "v3",
			Title:        "枸杞的正確吃法與禁忌",
			Description:  "保溫杯裡泡枸杞真的有用嗎？中醫師教你如何挑選和食用枸杞才能發揮最大功效。",
			ThumbnailURL: "https://images.unsplash.com/photo-1512621776951-a57141f2eefd?auto=format&fit=crop&q=80&w=1000",
			Duration:     "08:45",
			AuthorID:     "u1",
			Views:        890,
			Category:     "藥膳食療",
			Tags:         []string{"枸杞", "食療", "養生"},
			Status:       models.StatusPublished,
			CreatedAt:    now.Add(-3 * week),
			Likes:        56,
			Comments:     []models.Comment{},
		},
		{
			ID:           "v4",
			Title:        "【VIP】婦科調理專題：月經不順的調理",
			Description:  "針對女性常見問題，提供系統性的飲食與穴位調理方案。",
			ThumbnailURL: "https://images.unsplash.com/photo-1544367563-12123d8965cd?auto=format&fit=crop&q=80&w=1000",
			Duration:     "30:20",
			AuthorID:     "u1",
			Views:        3200,
			Category:     "婦科調理",
			Tags:         []string{"女性", "月經", "調理"},
			Paid:         true,
			Status:       models.StatusPublished,
			CreatedAt:    now.Add(-4 * week),
			Likes:        180,
			Comments:     []models.Comment{},
		},
	}
}
