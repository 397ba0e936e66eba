package model

import "time"

// Timestamps are maintained by the backend.
type Timestamps struct {
	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Service is an entry of the "our services" section.
type Service struct {
	ID       int64  `json:"id"`
	Image    string `json:"image"`
	Title    string `json:"title"`
	SubTitle string `json:"sub_title"`
	Timestamps
}

// Review is a customer testimonial.
type Review struct {
	ID         int64  `json:"id"`
	UserImg    string `json:"user_img"`
	UserName   string `json:"user_name"`
	UserReview string `json:"user_review"`
	Timestamps
}

// Distributor is a partner with a logo and a link.
type Distributor struct {
	ID    int64  `json:"id"`
	Image string `json:"image"`
	Title string `json:"title"`
	Link  string `json:"link"`
	Timestamps
}

// Project is a showcased project.
type Project struct {
	ID    int64  `json:"id"`
	Image string `json:"image"`
	Title string `json:"title"`
	Info  string `json:"info"`
	Link  string `json:"link"`
	Timestamps
}

// Translation is a UI string in three scripts.
type Translation struct {
	ID     int64  `json:"id"`
	Key    string `json:"key"`
	NameUz string `json:"name_uz"`
	NameRu string `json:"name_ru"`
	NameKr string `json:"name_kr"`
	IsUse  bool   `json:"is_use"`
	Timestamps
}

// DashboardStats counts records per section.
type DashboardStats struct {
	ServicesCount     int `json:"servicesCount"`
	ReviewsCount      int `json:"reviewsCount"`
	DistributorsCount int `json:"distributorsCount"`
	ProjectsCount     int `json:"projectsCount"`
	TranslationsCount int `json:"translationsCount"`
}
