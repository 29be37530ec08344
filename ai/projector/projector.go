// Package projector renders records into the flat search text that is
// embedded and matched lexically.
package projector

import (
	"strconv"
	"strings"

	"github.com/hrygo/recruitsense/store"
)

// Section names group related fields for sectioned chunking.
const (
	SectionBasicInfo    = "BASIC_INFO"
	SectionSkills       = "SKILLS"
	SectionExperience   = "EXPERIENCE"
	SectionEducation    = "EDUCATION"
	SectionLanguages    = "LANGUAGES"
	SectionRequirements = "REQUIREMENTS"
	SectionContacts     = "CONTACTS"
	SectionDocuments    = "DOCUMENTS"
	SectionTags         = "TAGS"
)

// ExtractedKind identifies where pre-extracted text came from.
type ExtractedKind string

const (
	CVText         ExtractedKind = "cv"
	CompetenceText ExtractedKind = "competence"
	DocumentText   ExtractedKind = "document"
)

// Extracted is text pulled out of an externally stored file.
type Extracted struct {
	Kind ExtractedKind
	Text string
}

func (k ExtractedKind) label() string {
	switch k {
	case CVText:
		return "CV"
	case CompetenceText:
		return "Competence file"
	default:
		return "Document text"
	}
}

// Section is a labeled block of related fields.
type Section struct {
	Name string
	Text string
}

func (s Section) String() string {
	return s.Name + ":\n" + s.Text
}

type field struct {
	section string
	label   string // empty for free text
	values  []string
}

// render joins the non-empty values with sep. Empty fields render as "".
func (f field) render(sep string) string {
	values := make([]string, 0, len(f.values))
	for _, v := range f.values {
		if v = normalize(v); v != "" {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return ""
	}
	joined := strings.Join(values, sep)
	if f.label == "" {
		return joined
	}
	return f.label + ": " + joined
}

// Project renders rec and any extracted text as labeled lines in a fixed
// order. Collections are space-joined and empty fields are dropped.
func Project(rec store.Record, extra ...Extracted) string {
	var lines []string
	for _, f := range collect(rec, extra) {
		if line := f.render(" "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// Sections groups the same fields as Project into named blocks, in order of
// first appearance. Collections are comma-joined.
func Sections(rec store.Record, extra ...Extracted) []Section {
	var (
		sections []Section
		lines    [][]string
		index    = map[string]int{}
	)
	for _, f := range collect(rec, extra) {
		line := f.render(", ")
		if line == "" {
			continue
		}
		i, ok := index[f.section]
		if !ok {
			i = len(sections)
			index[f.section] = i
			sections = append(sections, Section{Name: f.section})
			lines = append(lines, nil)
		}
		lines[i] = append(lines[i], line)
	}
	for i := range sections {
		sections[i].Text = strings.Join(lines[i], "\n")
	}
	return sections
}

func collect(rec store.Record, extra []Extracted) []field {
	var fields []field
	switch r := rec.(type) {
	case *store.Candidate:
		fields = candidateFields(r)
	case *store.Job:
		fields = jobFields(r)
	case *store.Client:
		fields = clientFields(r)
	case *store.Project:
		fields = projectFields(r)
	case *store.Document:
		fields = documentFields(r)
	}
	for _, e := range extra {
		fields = append(fields, field{section: SectionDocuments, label: e.Kind.label(), values: []string{e.Text}})
	}
	return fields
}

func candidateFields(c *store.Candidate) []field {
	fields := []field{
		{SectionBasicInfo, "Name", []string{strings.TrimSpace(c.FirstName + " " + c.LastName)}},
		{SectionBasicInfo, "Title", []string{c.Title}},
		{SectionBasicInfo, "Email", []string{c.Email}},
		{SectionBasicInfo, "Phone", []string{c.Phone}},
		{SectionBasicInfo, "Location", []string{c.Location}},
		{SectionBasicInfo, "Status", []string{c.Status}},
	}
	if c.YearsOfExperience > 0 {
		fields = append(fields, field{SectionBasicInfo, "Years of experience", []string{strconv.Itoa(c.YearsOfExperience)}})
	}
	fields = append(fields,
		field{SectionBasicInfo, "", []string{c.Summary}},
		field{SectionSkills, "Technical skills", c.TechnicalSkills},
		field{SectionSkills, "Soft skills", c.SoftSkills},
		field{SectionSkills, "Certifications", c.Certifications},
	)
	for _, e := range c.Experience {
		fields = append(fields, field{SectionExperience, "Experience", []string{experience(e)}})
	}
	for _, e := range c.Education {
		fields = append(fields, field{SectionEducation, "Education", []string{education(e)}})
	}
	fields = append(fields,
		field{SectionLanguages, "Languages", languages(c.Languages)},
		field{SectionTags, "Tags", c.Tags},
	)
	return fields
}

func jobFields(j *store.Job) []field {
	return []field{
		{SectionBasicInfo, "Title", []string{j.Title}},
		{SectionBasicInfo, "Client", []string{j.ClientName}},
		{SectionBasicInfo, "Location", []string{j.Location}},
		{SectionBasicInfo, "Employment type", []string{j.EmploymentType}},
		{SectionBasicInfo, "Seniority", []string{j.Seniority}},
		{SectionBasicInfo, "Salary", []string{j.SalaryRange}},
		{SectionBasicInfo, "Status", []string{j.Status}},
		{SectionBasicInfo, "", []string{j.Description}},
		{SectionRequirements, "Required skills", j.RequiredSkills},
		{SectionRequirements, "Nice to have", j.NiceToHave},
		{SectionRequirements, "Requirements", j.Requirements},
		{SectionLanguages, "Languages", languages(j.Languages)},
		{SectionTags, "Tags", j.Tags},
	}
}

func clientFields(c *store.Client) []field {
	fields := []field{
		{SectionBasicInfo, "Name", []string{c.Name}},
		{SectionBasicInfo, "Industry", []string{c.Industry}},
		{SectionBasicInfo, "Website", []string{c.Website}},
		{SectionBasicInfo, "Location", []string{c.Location}},
		{SectionBasicInfo, "Status", []string{c.Status}},
		{SectionBasicInfo, "", []string{c.Description}},
	}
	for _, ct := range c.Contacts {
		fields = append(fields, field{SectionContacts, "Contact", []string{contact(ct)}})
	}
	return append(fields, field{SectionTags, "Tags", c.Tags})
}

func projectFields(p *store.Project) []field {
	return []field{
		{SectionBasicInfo, "Name", []string{p.Name}},
		{SectionBasicInfo, "Client", []string{p.ClientName}},
		{SectionBasicInfo, "Location", []string{p.Location}},
		{SectionBasicInfo, "Period", []string{period(p.StartDate, p.EndDate)}},
		{SectionBasicInfo, "Status", []string{p.Status}},
		{SectionBasicInfo, "", []string{p.Description}},
		{SectionSkills, "Technologies", p.Technologies},
		{SectionSkills, "Roles", p.Roles},
		{SectionTags, "Tags", p.Tags},
	}
}

func documentFields(d *store.Document) []field {
	return []field{
		{SectionBasicInfo, "Title", []string{d.Title}},
		{SectionBasicInfo, "Kind", []string{d.Kind}},
		{SectionBasicInfo, "Owner", []string{strings.TrimSpace(string(d.OwnerEntity) + " " + d.OwnerID)}},
		{SectionBasicInfo, "Status", []string{d.Status}},
		{SectionBasicInfo, "", []string{d.Description}},
		{SectionDocuments, "", []string{d.Content}},
		{SectionTags, "Tags", d.Tags},
	}
}

func experience(e store.Experience) string {
	var b strings.Builder
	b.WriteString(normalize(e.Role))
	if company := normalize(e.Company); company != "" {
		if b.Len() > 0 {
			b.WriteString(" at ")
		}
		b.WriteString(company)
	}
	if p := period(e.StartDate, e.EndDate); p != "" {
		b.WriteString(" (" + p + ")")
	}
	if desc := normalize(e.Description); desc != "" {
		b.WriteString(" " + desc)
	}
	return strings.TrimSpace(b.String())
}

func education(e store.Education) string {
	parts := []string{}
	degree := normalize(e.Degree)
	if f := normalize(e.Field); f != "" {
		if degree != "" {
			degree += " in " + f
		} else {
			degree = f
		}
	}
	for _, p := range []string{degree, normalize(e.Institution)} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	out := strings.Join(parts, ", ")
	if e.Year > 0 {
		out = strings.TrimSpace(out + " (" + strconv.Itoa(e.Year) + ")")
	}
	return out
}

func languages(langs []store.Language) []string {
	out := make([]string, 0, len(langs))
	for _, l := range langs {
		name := normalize(l.Name)
		if name == "" {
			continue
		}
		if level := normalize(l.Level); level != "" {
			name += " (" + level + ")"
		}
		out = append(out, name)
	}
	return out
}

func contact(c store.Contact) string {
	out := normalize(c.Name)
	if role := normalize(c.Role); role != "" {
		out += " (" + role + ")"
	}
	if email := normalize(c.Email); email != "" {
		out += " " + email
	}
	return strings.TrimSpace(out)
}

func period(start, end string) string {
	start, end = normalize(start), normalize(end)
	switch {
	case start != "" && end != "":
		return start + " - " + end
	case start != "":
		return start + " - present"
	default:
		return end
	}
}

// normalize collapses whitespace runs so line structure stays stable.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
