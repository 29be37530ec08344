package projector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/recruitsense/store"
)

func sampleCandidate() *store.Candidate {
	return &store.Candidate{
		ID:                "c-1",
		FirstName:         "Alice",
		LastName:          "Johnson",
		Title:             "Senior ML Engineer",
		Location:          "Berlin",
		YearsOfExperience: 7,
		Summary:           "Builds   recommendation\nsystems.",
		TechnicalSkills:   []string{"Python", "TensorFlow"},
		Languages:         []store.Language{{Name: "English", Level: "C2"}, {Name: "German"}},
		Experience: []store.Experience{
			{Company: "Acme", Role: "ML Engineer", StartDate: "2019", EndDate: "2024"},
		},
		Education: []store.Education{{Institution: "TU Berlin", Degree: "MSc", Field: "Computer Science", Year: 2017}},
		Tags:      []string{"ml"},
	}
}

func TestProject_Candidate(t *testing.T) {
	got := Project(sampleCandidate())
	want := "Name: Alice Johnson\n" +
		"Title: Senior ML Engineer\n" +
		"Location: Berlin\n" +
		"Years of experience: 7\n" +
		"Builds recommendation systems.\n" +
		"Technical skills: Python TensorFlow\n" +
		"Experience: ML Engineer at Acme (2019 - 2024)\n" +
		"Education: MSc in Computer Science, TU Berlin (2017)\n" +
		"Languages: English (C2) German\n" +
		"Tags: ml"
	assert.Equal(t, want, got)
}

func TestProject_DropsEmptyFields(t *testing.T) {
	got := Project(&store.Job{Title: "Backend Engineer", RequiredSkills: []string{"", "  ", "Go"}})
	assert.Equal(t, "Title: Backend Engineer\nRequired skills: Go", got)

	assert.Empty(t, Project(&store.Client{}))
}

func TestProject_Idempotent(t *testing.T) {
	records := []store.Record{
		sampleCandidate(),
		&store.Job{Title: "Data Engineer", RequiredSkills: []string{"SQL", "Spark"}, Languages: []store.Language{{Name: "French"}}},
		&store.Client{Name: "Acme", Contacts: []store.Contact{{Name: "Bob", Role: "CTO", Email: "bob@acme.io"}}},
		&store.Project{Name: "Migration", StartDate: "2024-01", Technologies: []string{"Kubernetes"}},
		&store.Document{Title: "Offer", Kind: "contract", Content: "Terms and conditions"},
	}
	for _, rec := range records {
		assert.Equal(t, Project(rec), Project(rec))
		assert.NotEmpty(t, Project(rec))
	}
}

func TestProject_SensitiveToConsumedFields(t *testing.T) {
	base := Project(sampleCandidate())

	mutations := map[string]func(c *store.Candidate){
		"first name":  func(c *store.Candidate) { c.FirstName = "Alicia" },
		"title":       func(c *store.Candidate) { c.Title = "Staff ML Engineer" },
		"email":       func(c *store.Candidate) { c.Email = "alice@example.com" },
		"phone":       func(c *store.Candidate) { c.Phone = "+49 1234" },
		"status":      func(c *store.Candidate) { c.Status = "placed" },
		"years":       func(c *store.Candidate) { c.YearsOfExperience = 8 },
		"summary":     func(c *store.Candidate) { c.Summary = "Different summary" },
		"skill added": func(c *store.Candidate) { c.TechnicalSkills = append(c.TechnicalSkills, "PyTorch") },
		"soft skills": func(c *store.Candidate) { c.SoftSkills = []string{"mentoring"} },
		"language":    func(c *store.Candidate) { c.Languages[1].Level = "B1" },
		"experience":  func(c *store.Candidate) { c.Experience[0].Company = "Globex" },
		"education":   func(c *store.Candidate) { c.Education[0].Year = 2018 },
		"certs":       func(c *store.Candidate) { c.Certifications = []string{"CKA"} },
		"tags":        func(c *store.Candidate) { c.Tags = []string{"ai"} },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			c := sampleCandidate()
			mutate(c)
			assert.NotEqual(t, base, Project(c))
		})
	}
}

func TestProject_Extracted(t *testing.T) {
	got := Project(&store.Candidate{FirstName: "Ada"},
		Extracted{Kind: CVText, Text: "  Ten years of Go.  "},
		Extracted{Kind: CompetenceText, Text: ""},
	)
	assert.Equal(t, "Name: Ada\nCV: Ten years of Go.", got)
}

func TestSections(t *testing.T) {
	sections := Sections(sampleCandidate(), Extracted{Kind: CVText, Text: "cv body"})

	names := make([]string, 0, len(sections))
	for _, s := range sections {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{
		SectionBasicInfo, SectionSkills, SectionExperience, SectionEducation,
		SectionLanguages, SectionTags, SectionDocuments,
	}, names)

	require.Len(t, sections, 7)
	assert.Equal(t, "Technical skills: Python, TensorFlow", sections[1].Text)
	assert.Equal(t, "LANGUAGES:\nLanguages: English (C2), German", sections[4].String())
	assert.Equal(t, "CV: cv body", sections[6].Text)
}

func TestSections_Empty(t *testing.T) {
	assert.Empty(t, Sections(&store.Document{}))
}
