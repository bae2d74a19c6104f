package config

// InstitutionProfile describes one configured source organization: the
// domains its news lives on, the listing pages and feeds to scan, and
// the audience context injected into prompts.
type InstitutionProfile struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Location string `yaml:"location"`

	Domains       []string `yaml:"domains"`
	CategoryPages []string `yaml:"category_pages"`
	Feeds         []string `yaml:"feeds"`

	// URLValidators are regex patterns an article URL must match to be
	// taken from a listing page. Empty means accept same-domain links.
	URLValidators []string `yaml:"url_validators"`

	Keywords   []string `yaml:"keywords"`
	AudienceEN string   `yaml:"audience_en"`
	AudienceZH string   `yaml:"audience_zh"`

	// Priority weights this institution in cross-source ranking.
	// 1.0 is neutral.
	Priority float64 `yaml:"priority"`

	// Acceptance overrides: some campuses publish most student-facing
	// news as event announcements or signed columns.
	IncludeEvents  bool `yaml:"include_events"`
	IncludeOpinion bool `yaml:"include_opinion"`
}

func defaultInstitutions() []InstitutionProfile {
	return []InstitutionProfile{
		{
			ID:            "nyu",
			Name:          "New York University",
			Location:      "New York",
			Domains:       []string{"nyunews.com", "www.nyu.edu"},
			CategoryPages: []string{"https://nyunews.com/category/news/"},
			URLValidators: []string{`/news/\d{4}/\d{2}/\d{2}/`},
			Keywords:      []string{"Chinese international students", "NYU", "New York student life", "campus events"},
			AudienceEN:    "Chinese international students at New York University (NYU)",
			AudienceZH:    "纽约大学（NYU）的中国留学生",
			Priority:      1.0,
		},
		{
			ID:            "emory",
			Name:          "Emory University",
			Location:      "Atlanta",
			Domains:       []string{"news.emory.edu", "www.emorywheel.com"},
			CategoryPages: []string{"https://www.emorywheel.com/section/news"},
			URLValidators: []string{`^https?://news\.emory\.edu/stories/\d{4}/\d{2}/[^/]+/story\.html$`},
			Keywords:      []string{"Emory University", "Atlanta campus", "international students"},
			AudienceEN:    "Chinese international students at Emory University",
			AudienceZH:    "埃默里大学的中国留学生",
			Priority:      1.0,
		},
		{
			ID:            "ubc",
			Name:          "University of British Columbia",
			Location:      "Vancouver",
			Domains:       []string{"news.ubc.ca", "ubctoday.ubc.ca", "ubyssey.ca"},
			CategoryPages: []string{"https://news.ubc.ca/category/university-news/"},
			URLValidators: []string{`/\d{4}/\d{2}/\d{2}/`, `/news/`},
			Keywords:      []string{"UBC", "Vancouver campus", "international students"},
			AudienceEN:    "Chinese international students at UBC",
			AudienceZH:    "英属哥伦比亚大学的中国留学生",
			Priority:      1.0,
			IncludeEvents: true,
		},
	}
}
