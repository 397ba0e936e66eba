package postgres

import (
	"github.com/jackc/pgx/v5"

	"github.com/and161185/tim-admin/internal/model"
)

var Services = Schema[model.Service]{
	Table:   "services",
	Columns: []string{"image", "title", "sub_title"},
	Search:  []string{"title", "sub_title"},
	Scan: func(row pgx.Row) (model.Service, error) {
		var v model.Service
		err := row.Scan(&v.ID, &v.Image, &v.Title, &v.SubTitle, &v.CreatedAt, &v.UpdatedAt)
		return v, err
	},
}

var Reviews = Schema[model.Review]{
	Table:   "reviews",
	Columns: []string{"user_img", "user_name", "user_review"},
	Search:  []string{"user_name", "user_review"},
	Scan: func(row pgx.Row) (model.Review, error) {
		var v model.Review
		err := row.Scan(&v.ID, &v.UserImg, &v.UserName, &v.UserReview, &v.CreatedAt, &v.UpdatedAt)
		return v, err
	},
}

var Distributors = Schema[model.Distributor]{
	Table:   "distributors",
	Columns: []string{"image", "title", "link"},
	Search:  []string{"title"},
	Scan: func(row pgx.Row) (model.Distributor, error) {
		var v model.Distributor
		err := row.Scan(&v.ID, &v.Image, &v.Title, &v.Link, &v.CreatedAt, &v.UpdatedAt)
		return v, err
	},
}

var Projects = Schema[model.Project]{
	Table:   "projects",
	Columns: []string{"image", "title", "info", "link"},
	Search:  []string{"title", "info"},
	Scan: func(row pgx.Row) (model.Project, error) {
		var v model.Project
		err := row.Scan(&v.ID, &v.Image, &v.Title, &v.Info, &v.Link, &v.CreatedAt, &v.UpdatedAt)
		return v, err
	},
}

var Translations = Schema[model.Translation]{
	Table:   "translations",
	Columns: []string{"key", "name_uz", "name_ru", "name_kr", "is_use"},
	Search:  []string{"key", "name_uz", "name_ru", "name_kr"},
	Scan: func(row pgx.Row) (model.Translation, error) {
		var v model.Translation
		err := row.Scan(&v.ID, &v.Key, &v.NameUz, &v.NameRu, &v.NameKr, &v.IsUse, &v.CreatedAt, &v.UpdatedAt)
		return v, err
	},
}
