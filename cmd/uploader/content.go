package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	// Packages
	isatty "github.com/mattn/go-isatty"
	types "github.com/mutablelogic/go-server/pkg/types"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

type ContentCommands struct {
	Contents      ListContentCommand   `cmd:"" name:"contents" group:"CONTENT" help:"List content records"`
	Content       GetContentCommand    `cmd:"" name:"content" group:"CONTENT" help:"Get a content record"`
	ContentDelete DeleteContentCommand `cmd:"" name:"content-delete" group:"CONTENT" help:"Delete a content record and its object"`
	Health        HealthCommand        `cmd:"" name:"health" group:"CONTENT" help:"Check storage health"`
}

type ListContentCommand struct {
	Status string  `name:"status" enum:",uploading,processing,completed,failed" default:"" help:"Filter by status"`
	Offset uint64  `name:"offset" help:"Number of records to skip"`
	Limit  *uint64 `name:"limit" short:"n" help:"Maximum number of records to return"`
}

type GetContentCommand struct {
	Id uint64 `arg:"" name:"id" help:"Content id"`
}

type DeleteContentCommand struct {
	GetContentCommand
}

type HealthCommand struct{}

///////////////////////////////////////////////////////////////////////////////
// COMMANDS

func (cmd *ListContentCommand) Run(ctx *Globals) error {
	c, err := ctx.Client()
	if err != nil {
		return err
	}
	req := schema.ContentListRequest{}
	req.Offset = cmd.Offset
	req.Limit = cmd.Limit
	if cmd.Status != "" {
		req.Status = types.Ptr(schema.Status(cmd.Status))
	}
	resp, err := c.ListContent(ctx.ctx, req)
	if err != nil {
		return err
	}
	if ctx.Debug {
		return prettyJSON(resp)
	}
	return printContent(resp)
}

func (cmd *GetContentCommand) Run(ctx *Globals) error {
	c, err := ctx.Client()
	if err != nil {
		return err
	}
	content, err := c.GetContent(ctx.ctx, cmd.Id)
	if err != nil {
		return err
	}
	return prettyJSON(content)
}

func (cmd *DeleteContentCommand) Run(ctx *Globals) error {
	c, err := ctx.Client()
	if err != nil {
		return err
	}
	content, err := c.DeleteContent(ctx.ctx, cmd.Id)
	if err != nil {
		return err
	}
	return prettyJSON(content)
}

func (cmd *HealthCommand) Run(ctx *Globals) error {
	c, err := ctx.Client()
	if err != nil {
		return err
	}
	health, err := c.Health(ctx.ctx)
	if err != nil {
		return err
	}
	if err := prettyJSON(health); err != nil {
		return err
	}
	if !health.Healthy {
		return fmt.Errorf("bucket %q is unhealthy", health.Bucket)
	}
	return nil
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// printContent renders content records as a table
func printContent(list *schema.ContentList) error {
	bold := isatty.IsTerminal(os.Stdout.Fd())
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, c := range list.Body {
		title := c.Title
		if bold {
			title = "\x1b[1m" + title + "\x1b[0m"
		}
		fmt.Fprintf(w, "%6d\t%-10s\t%-8s\t%8s\t%s\t%s\n",
			c.Id, c.Status, c.Type, humanSize(c.Size), formatTime(c.CreatedAt), title)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if uint64(len(list.Body)) < list.Count {
		fmt.Fprintf(os.Stdout, "\n  %d of %d record(s)\n", len(list.Body), list.Count)
	} else {
		fmt.Fprintf(os.Stdout, "\n  %d record(s)\n", list.Count)
	}
	return nil
}

// formatTime formats a time in ls-style. Zero times are rendered as blanks.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "            "
	}
	if t.Year() == time.Now().Year() {
		return t.Format("Jan _2 15:04")
	}
	return t.Format("Jan _2  2006")
}
