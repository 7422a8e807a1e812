package workspace

import (
	"fmt"

	"github.com/liamcoop/sqlgen/internal/logger"
	"github.com/liamcoop/sqlgen/rules"
)

// TemplateInput carries the client-supplied fields of a template. Nil
// fields are left unchanged on update.
type TemplateInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
	Content     *string `json:"content"`
	IsEnabled   *bool   `json:"isEnabled"`
}

func (in TemplateInput) apply(tmpl *rules.Template) {
	if in.Name != nil {
		tmpl.Name = *in.Name
	}
	if in.Description != nil {
		tmpl.Description = *in.Description
	}
	if in.Category != nil {
		tmpl.Category = *in.Category
	}
	if in.Content != nil {
		tmpl.Content = *in.Content
	}
	if in.IsEnabled != nil {
		tmpl.IsEnabled = *in.IsEnabled
	}
}

// ExportedTemplate is the portable form of a template
type ExportedTemplate struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Content     string `json:"content"`
}

// TemplateExport is the payload of an export
type TemplateExport struct {
	Templates []ExportedTemplate `json:"templates"`
	Count     int                `json:"count"`
}

// ImportedTemplate identifies a template created by an import
type ImportedTemplate struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ImportResult lists the created templates and one message per rejected item
type ImportResult struct {
	Imported []ImportedTemplate `json:"imported"`
	Errors   []string           `json:"errors,omitempty"`
}

// CreateTemplate stores a new template, enabled unless the input says otherwise
func (w *Workspace) CreateTemplate(in TemplateInput) (*rules.Template, error) {
	tmpl := &rules.Template{IsEnabled: true, OwnerID: w.OwnerID}
	in.apply(tmpl)

	if err := ValidateTemplate(tmpl); err != nil {
		return nil, err
	}
	if err := w.Templates.Add(tmpl); err != nil {
		return nil, fmt.Errorf("failed to create template: %w", err)
	}

	logger.Info("template created", "owner", w.OwnerID, "template_id", tmpl.ID, "name", tmpl.Name)
	return tmpl, nil
}

// UpdateTemplate applies the non-nil fields of in
func (w *Workspace) UpdateTemplate(id int64, in TemplateInput) (*rules.Template, error) {
	tmpl, err := w.Templates.Get(id)
	if err != nil {
		return nil, err
	}
	in.apply(tmpl)

	if err := ValidateTemplate(tmpl); err != nil {
		return nil, err
	}
	if err := w.Templates.Update(tmpl); err != nil {
		return nil, fmt.Errorf("failed to update template: %w", err)
	}
	return tmpl, nil
}

// GetTemplate returns a template by id
func (w *Workspace) GetTemplate(id int64) (*rules.Template, error) {
	return w.Templates.Get(id)
}

// ListTemplates returns templates in id order
func (w *Workspace) ListTemplates(onlyEnabled bool) ([]*rules.Template, error) {
	return w.Templates.List(onlyEnabled)
}

// TemplateCategories returns the distinct template categories
func (w *Workspace) TemplateCategories() ([]string, error) {
	return w.Templates.Categories()
}

// DeleteTemplate removes a template. Rules pointing at it stop matching.
func (w *Workspace) DeleteTemplate(id int64) error {
	if err := w.Templates.Delete(id); err != nil {
		return err
	}
	logger.Info("template deleted", "owner", w.OwnerID, "template_id", id)
	return nil
}

// CopyTemplate stores a duplicate of template id named "<name> (copy)"
func (w *Workspace) CopyTemplate(id int64) (*rules.Template, error) {
	src, err := w.Templates.Get(id)
	if err != nil {
		return nil, err
	}

	dup := &rules.Template{
		Name:        src.Name + copySuffix,
		Description: src.Description,
		Category:    src.Category,
		Content:     src.Content,
		IsEnabled:   src.IsEnabled,
		OwnerID:     w.OwnerID,
	}
	if err := w.Templates.Add(dup); err != nil {
		return nil, fmt.Errorf("failed to copy template: %w", err)
	}
	return dup, nil
}

// SetTemplateEnabled enables or disables a template
func (w *Workspace) SetTemplateEnabled(id int64, enabled bool) (*rules.Template, error) {
	tmpl, err := w.Templates.Get(id)
	if err != nil {
		return nil, err
	}
	tmpl.IsEnabled = enabled
	if err := w.Templates.Update(tmpl); err != nil {
		return nil, fmt.Errorf("failed to update template: %w", err)
	}
	return tmpl, nil
}

// ExportTemplates exports the templates whose ids are listed, or all of
// them when ids is empty. Ids that are not numbers are skipped; when none
// of the given ids parse nothing is exported.
func (w *Workspace) ExportTemplates(ids []string) (*TemplateExport, error) {
	out := &TemplateExport{Templates: []ExportedTemplate{}}

	parsed := rules.ParseIDs(ids)
	if len(ids) > 0 && len(parsed) == 0 {
		return out, nil
	}

	list, err := w.Templates.ListByIDs(parsed)
	if err != nil {
		return nil, fmt.Errorf("failed to export templates: %w", err)
	}
	for _, t := range list {
		out.Templates = append(out.Templates, ExportedTemplate{
			Name:        t.Name,
			Description: t.Description,
			Content:     t.Content,
		})
	}
	out.Count = len(out.Templates)
	return out, nil
}

// ImportTemplates creates one enabled template per item. Items without a
// name or content are reported in Errors and skipped.
func (w *Workspace) ImportTemplates(items []ExportedTemplate) (*ImportResult, error) {
	if len(items) == 0 {
		return nil, invalid("no templates to import")
	}

	result := &ImportResult{Imported: []ImportedTemplate{}}
	for i, item := range items {
		if item.Name == "" || item.Content == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("template %d: name and content are required", i+1))
			continue
		}

		tmpl := &rules.Template{
			Name:        item.Name,
			Description: item.Description,
			Content:     item.Content,
			IsEnabled:   true,
			OwnerID:     w.OwnerID,
		}
		if err := ValidateTemplate(tmpl); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("template %d: %v", i+1, err))
			continue
		}
		if err := w.Templates.Add(tmpl); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("template %d: import failed: %v", i+1, err))
			continue
		}
		result.Imported = append(result.Imported, ImportedTemplate{ID: tmpl.ID, Name: tmpl.Name})
	}

	logger.Info("templates imported", "owner", w.OwnerID, "imported", len(result.Imported), "rejected", len(result.Errors))
	return result, nil
}
