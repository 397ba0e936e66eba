package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/and161185/tim-admin/internal/client/api"
	"github.com/and161185/tim-admin/internal/client/notify"
	"github.com/and161185/tim-admin/internal/errs"
	"github.com/and161185/tim-admin/internal/model"
)

// resourceDef describes the commands of one collection.
type resourceDef[T any] struct {
	name      string
	short     string
	fileField string // empty when records carry no image
	pick      func(*api.Client) *api.Resource[T]
	headers   []string
	row       func(T) []string
}

func (c *cli) resourceCmds() []*cobra.Command {
	return []*cobra.Command{
		resourceCmd(c, resourceDef[model.Service]{
			name: "services", short: "Our services section", fileField: "img",
			pick:    func(a *api.Client) *api.Resource[model.Service] { return a.Services },
			headers: []string{"ID", "Title", "Subtitle", "Image"},
			row: func(s model.Service) []string {
				return []string{id(s.ID), s.Title, truncate(s.SubTitle, 40), s.Image}
			},
		}),
		resourceCmd(c, resourceDef[model.Review]{
			name: "reviews", short: "Customer reviews", fileField: "user_img",
			pick:    func(a *api.Client) *api.Resource[model.Review] { return a.Reviews },
			headers: []string{"ID", "User", "Review", "Image"},
			row: func(r model.Review) []string {
				return []string{id(r.ID), r.UserName, truncate(r.UserReview, 50), r.UserImg}
			},
		}),
		resourceCmd(c, resourceDef[model.Distributor]{
			name: "distributors", short: "Distributors", fileField: "img",
			pick:    func(a *api.Client) *api.Resource[model.Distributor] { return a.Distributors },
			headers: []string{"ID", "Title", "Link", "Image"},
			row: func(d model.Distributor) []string {
				return []string{id(d.ID), d.Title, d.Link, d.Image}
			},
		}),
		resourceCmd(c, resourceDef[model.Project]{
			name: "projects", short: "Our projects", fileField: "img",
			pick:    func(a *api.Client) *api.Resource[model.Project] { return a.Projects },
			headers: []string{"ID", "Title", "Info", "Link", "Image"},
			row: func(p model.Project) []string {
				return []string{id(p.ID), p.Title, truncate(p.Info, 40), p.Link, p.Image}
			},
		}),
		resourceCmd(c, resourceDef[model.Translation]{
			name: "translations", short: "UI translations",
			pick:    func(a *api.Client) *api.Resource[model.Translation] { return a.Translations },
			headers: []string{"ID", "Key", "UZ", "RU", "KR", "In use"},
			row: func(t model.Translation) []string {
				return []string{id(t.ID), t.Key, truncate(t.NameUz, 30), truncate(t.NameRu, 30), truncate(t.NameKr, 30), yesNo(t.IsUse)}
			},
		}),
	}
}

func resourceCmd[T any](c *cli, def resourceDef[T]) *cobra.Command {
	parent := &cobra.Command{Use: def.name, Short: def.short}
	res := func() *api.Resource[T] { return def.pick(c.app.API) }

	var q model.ListQuery
	list := &cobra.Command{
		Use:   "list",
		Short: "List records",
		Args:  cobra.NoArgs,
		RunE: c.protected(func(cmd *cobra.Command, _ []string) error {
			page, err := res().Paginate(cmd.Context(), q)
			if err != nil {
				return err
			}
			if c.jsonOut {
				return printJSON(c.out, page)
			}
			if err := printRows(c, def, page.Items); err != nil {
				return err
			}
			if page.TotalPages > 1 {
				fmt.Fprintf(c.out, "Page %d of %d (%d records)\n", page.Page, page.TotalPages, page.Total)
			}
			return nil
		}),
	}
	list.Flags().IntVar(&q.Page, "page", 0, "page number")
	list.Flags().IntVar(&q.Limit, "limit", 0, "records per page")
	list.Flags().StringVar(&q.Search, "search", "", "search text")

	get := &cobra.Command{
		Use:   "get ID",
		Short: "Show one record",
		Args:  cobra.ExactArgs(1),
		RunE: c.protected(func(cmd *cobra.Command, args []string) error {
			n, err := parseID(args[0])
			if err != nil {
				return err
			}
			v, err := res().Get(cmd.Context(), n)
			if err != nil {
				return err
			}
			return printOne(c, def, v)
		}),
	}

	var (
		fields []string
		image  string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a record",
		Args:  cobra.NoArgs,
		RunE: c.protected(func(cmd *cobra.Command, _ []string) error {
			f, closeFn, err := buildForm(fields, def.fileField, image)
			if err != nil {
				return err
			}
			defer closeFn()
			v, err := res().Create(cmd.Context(), f)
			if err != nil {
				return err
			}
			notify.Success(c.app.Notifier, "Created successfully")
			return printOne(c, def, v)
		}),
	}

	update := &cobra.Command{
		Use:   "update ID",
		Short: "Update a record",
		Args:  cobra.ExactArgs(1),
		RunE: c.protected(func(cmd *cobra.Command, args []string) error {
			n, err := parseID(args[0])
			if err != nil {
				return err
			}
			f, closeFn, err := buildForm(fields, def.fileField, image)
			if err != nil {
				return err
			}
			defer closeFn()
			v, err := res().Update(cmd.Context(), n, f)
			if err != nil {
				return err
			}
			notify.Success(c.app.Notifier, "Updated successfully")
			return printOne(c, def, v)
		}),
	}

	for _, cmd := range []*cobra.Command{create, update} {
		cmd.Flags().StringArrayVarP(&fields, "field", "f", nil, "field as key=value (repeatable)")
		if def.fileField != "" {
			cmd.Flags().StringVar(&image, "image", "", "image file to upload")
		}
	}

	del := &cobra.Command{
		Use:     "delete ID",
		Aliases: []string{"rm"},
		Short:   "Delete a record",
		Args:    cobra.ExactArgs(1),
		RunE: c.protected(func(cmd *cobra.Command, args []string) error {
			n, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := res().Delete(cmd.Context(), n); err != nil {
				return err
			}
			notify.Success(c.app.Notifier, "Deleted successfully")
			return nil
		}),
	}

	parent.AddCommand(list, get, create, update, del)
	return parent
}

func printRows[T any](c *cli, def resourceDef[T], items []T) error {
	if len(items) == 0 {
		fmt.Fprintf(c.out, "No %s found\n", def.name)
		return nil
	}
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		rows = append(rows, def.row(it))
	}
	return renderTable(c.out, def.headers, rows)
}

func printOne[T any](c *cli, def resourceDef[T], v T) error {
	if c.jsonOut {
		return printJSON(c.out, v)
	}
	return renderTable(c.out, def.headers, [][]string{def.row(v)})
}

// buildForm parses key=value fields and opens the optional image.
func buildForm(fields []string, fileField, image string) (model.Form, func(), error) {
	f := model.Form{Values: make(map[string]string, len(fields))}
	for _, kv := range fields {
		k, v, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return model.Form{}, nil, fmt.Errorf("%w: field %q is not key=value", errs.ErrValidation, kv)
		}
		f.Values[k] = v
	}
	if image == "" {
		return f, func() {}, nil
	}

	file, err := os.Open(image)
	if err != nil {
		return model.Form{}, nil, fmt.Errorf("open image: %w", err)
	}
	st, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return model.Form{}, nil, err
	}
	f.File = &model.Upload{
		Field:       fileField,
		Name:        filepath.Base(image),
		ContentType: mime.TypeByExtension(strings.ToLower(filepath.Ext(image))),
		Size:        st.Size(),
		Body:        file,
	}
	return f, func() { _ = file.Close() }, nil
}

func parseID(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", errs.ErrValidation, s)
	}
	return n, nil
}

func id(n int64) string { return strconv.FormatInt(n, 10) }
