package profile

import (
	"time"

	"tcmhub/internal/models"
)

// GuestUser is the placeholder shown to anonymous viewers.
func GuestUser() *models.User {
	return &models.User{
		ID:            models.GuestID,
		Name:          "訪客",
		AvatarURL:     "https://api.dicebear.com/7.x/avataaars/svg?seed=Guest",
		Bio:           "請登入以體驗完整功能。",
		JoinedAt:      "剛剛",
		Profile:       models.GuestProfile{},
		History:       []string{},
		Notifications: []models.Notification{},
	}
}

func fixtureNotifications(now time.Time) []models.Notification {
	return []models.Notification{
		{ID: "n1", Kind: models.NotificationSystem, Content: "歡迎加入中醫智匯！", Read: true, CreatedAt: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "n2", Kind: models.NotificationReply, Content: "陳醫師回覆了您的文章：請問失眠有什麼...", CreatedAt: now, Target: &models.Target{Kind: models.TargetPost, ID: "p1"}},
		{ID: "n3", Kind: models.NotificationLike, Content: "有人按讚了您的留言", CreatedAt: now.Add(-time.Hour), Target: &models.Target{Kind: models.TargetVideo, ID: "v1"}},
	}
}

// FixtureUsers is the demo directory: the guest, two practitioners and a student.
func FixtureUsers(now time.Time) []*models.User {
	return []*models.User{
		GuestUser(),
		{
			ID:        "u1",
			Name:      "陳偉 醫師",
			AvatarURL: "https://api.dicebear.com/7.x/avataaars/svg?seed=Wei",
			Bio:       "擁有20年臨床經驗的中醫師，專長於針灸與草藥調理。致力於將古老智慧與現代健康結合，推廣治未病的理念。",
			Followers: 12500,
			Following: 45,
			JoinedAt:  "2018年1月",
			Email:     "dr.chen@tcm-harmony.com",
			Gender:    "male",
			Age:       48,
			Profile: models.PractitionerProfile{
				Title:         "主任醫師",
				LicenseNumber: "TCM-0092831",
				Specialties:   []string{"針灸", "內科調理", "疼痛管理", "體質調理"},
			},
			History:       []string{"v2"},
			Notifications: fixtureNotifications(now),
		},
		{
			ID:            "u2",
			Name:          "林小美",
			AvatarURL:     "https://api.dicebear.com/7.x/avataaars/svg?seed=Sarah",
			Bio:           "中醫愛好者，正在學習如何通過食療和穴位按摩來改善家人的健康。",
			Followers:     120,
			Following:     350,
			JoinedAt:      "2023年3月",
			Email:         "sarah.lin@example.com",
			Gender:        "female",
			Age:           28,
			Profile:       models.StudentProfile{Profession: "軟體工程師"},
			History:       []string{"v1", "v3"},
			Notifications: fixtureNotifications(now),
		},
		{
			ID:            "u3",
			Name:          "李大師",
			AvatarURL:     "https://api.dicebear.com/7.x/avataaars/svg?seed=Li",
			Bio:           "專注於氣功與太極教學30年，傳授養生之道。",
			Followers:     8900,
			Following:     12,
			JoinedAt:      "2019年12月",
			Email:         "master.li@qigong.com",
			Gender:        "male",
			Age:           65,
			Profile:       models.PractitionerProfile{Title: "氣功導師"},
			History:       []string{},
			Notifications: []models.Notification{},
		},
	}
}
