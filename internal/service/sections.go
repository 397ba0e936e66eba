package service

// Sections of the site as submitted by the admin client.
var (
	Services = Section{
		Name: "services",
		Fields: []Field{
			{Name: "title", Required: true},
			{Name: "sub_title", Required: true},
		},
		FileField:     "img",
		ImageColumn:   "image",
		ImageRequired: true,
	}
	Reviews = Section{
		Name: "reviews",
		Fields: []Field{
			{Name: "user_name", Required: true},
			{Name: "user_review", Required: true},
		},
		FileField:     "user_img",
		ImageColumn:   "user_img",
		ImageRequired: true,
	}
	Distributors = Section{
		Name: "distributors",
		Fields: []Field{
			{Name: "title", Required: true},
			{Name: "link", Kind: Link},
		},
		FileField:   "img",
		ImageColumn: "image",
	}
	Projects = Section{
		Name: "projects",
		Fields: []Field{
			{Name: "title", Required: true},
			{Name: "info"},
			{Name: "link", Kind: Link, Required: true},
		},
		FileField:     "img",
		ImageColumn:   "image",
		ImageRequired: true,
	}
	Translations = Section{
		Name: "translations",
		Fields: []Field{
			{Name: "key", Required: true},
			{Name: "name_uz", Required: true},
			{Name: "name_ru", Required: true},
			{Name: "name_kr", Required: true},
			{Name: "is_use", Kind: Bool},
		},
	}
)
