// Package content holds the static portfolio text rendered around the
// uploaded profile image and resume.
package content

import (
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed portfolio.yaml
var defaultPortfolio []byte

type Link struct {
	Label string `yaml:"label"`
	URL   string `yaml:"url"`
}

type Owner struct {
	Name       string `yaml:"name"`
	Profession string `yaml:"profession"`
	Email      string `yaml:"email"`
	Phone      string `yaml:"phone"`
	Location   string `yaml:"location"`
	Links      []Link `yaml:"links"`
}

type SkillCategory struct {
	Name  string   `yaml:"name"`
	Items []string `yaml:"items"`
}

type Skills struct {
	Description string          `yaml:"description"`
	Categories  []SkillCategory `yaml:"categories"`
}

type Education struct {
	Degree      string `yaml:"degree"`
	Institution string `yaml:"institution"`
	Location    string `yaml:"location"`
	Duration    string `yaml:"duration"`
	Grade       string `yaml:"grade"`
	Description string `yaml:"description"`
}

type Project struct {
	Title        string   `yaml:"title"`
	Description  string   `yaml:"description"`
	Details      []string `yaml:"details"`
	Technologies []string `yaml:"technologies"`
	Repo         string   `yaml:"repo"`
}

type Footer struct {
	Tagline   string `yaml:"tagline"`
	ShareText string `yaml:"share_text"`
}

type Portfolio struct {
	Owner     Owner       `yaml:"owner"`
	Summary   string      `yaml:"summary"`
	Skills    Skills      `yaml:"skills"`
	Education []Education `yaml:"education"`
	Projects  []Project   `yaml:"projects"`
	Footer    Footer      `yaml:"footer"`
}

var ErrNoOwner = errors.New("portfolio has no owner name")

// Parse decodes and validates a YAML portfolio document.
func Parse(data []byte) (*Portfolio, error) {
	var p Portfolio
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse portfolio: %w", err)
	}
	if p.Owner.Name == "" {
		return nil, ErrNoOwner
	}
	if p.Footer.ShareText == "" {
		p.Footer.ShareText = fmt.Sprintf("Check out %s's portfolio!", p.Owner.Name)
	}
	return &p, nil
}

// Default returns the embedded portfolio.
func Default() *Portfolio {
	p, err := Parse(defaultPortfolio)
	if err != nil {
		panic(fmt.Sprintf("embedded portfolio is invalid: %v", err))
	}
	return p
}

// LoadFile reads a portfolio from path.
func LoadFile(path string) (*Portfolio, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read portfolio: %w", err)
	}
	return Parse(data)
}

type ShareLink struct {
	Platform string
	Label    string
	URL      string
}

// ShareLinks returns the links used by the page's share menu.
func (p *Portfolio) ShareLinks(pageURL string) []ShareLink {
	u := url.QueryEscape(pageURL)
	text := url.QueryEscape(p.Footer.ShareText)
	return []ShareLink{
		{"facebook", "Facebook", "https://www.facebook.com/sharer/sharer.php?u=" + u},
		{"twitter", "Twitter", "https://twitter.com/intent/tweet?url=" + u + "&text=" + text},
		{"linkedin", "LinkedIn", "https://www.linkedin.com/shareArticle?mini=true&url=" + u + "&title=" + text},
		{"whatsapp", "WhatsApp", "https://api.whatsapp.com/send?text=" + url.QueryEscape(p.Footer.ShareText+" "+pageURL)},
		{"email", "Email", "mailto:?subject=" + text + "&body=" + url.QueryEscape("Check out this portfolio: "+pageURL)},
	}
}
