package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	// Packages
	isatty "github.com/mattn/go-isatty"
	httpclient "github.com/mutablelogic/go-upload/pkg/httpclient"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

type UploadCommands struct {
	Upload   UploadFileCommand `cmd:"" name:"upload" group:"UPLOAD" help:"Upload a file in parts"`
	Init     InitCommand       `cmd:"" name:"init" group:"UPLOAD" help:"Start an upload session"`
	Part     PartCommand       `cmd:"" name:"part" group:"UPLOAD" help:"Upload one part of a session"`
	Complete CompleteCommand   `cmd:"" name:"complete" group:"UPLOAD" help:"Complete an upload session"`
	Status   StatusCommand     `cmd:"" name:"status" group:"UPLOAD" help:"Get upload session status"`
	Abort    AbortCommand      `cmd:"" name:"abort" group:"UPLOAD" help:"Abort an upload session"`
	Dedup    DedupCommand      `cmd:"" name:"dedup" group:"UPLOAD" help:"Check whether content is already stored"`
	Presign  PresignCommand    `cmd:"" name:"presign" group:"UPLOAD" help:"Create a signed URL for a storage key"`
}

type UploadFileCommand struct {
	Path        string        `arg:"" type:"existingfile" help:"Local file to upload"`
	Name        string        `name:"name" help:"Remote file name (defaults to the local file name)"`
	ContentType string        `name:"type" help:"MIME type, inferred from the file name when empty"`
	PartSize    int64         `name:"part-size" default:"8388608" help:"Part size in bytes"`
	Concurrency int           `name:"concurrency" short:"c" default:"4" help:"Parts uploaded at once"`
	Retries     int           `name:"retries" default:"3" help:"Attempts for each part"`
	Hash        string        `name:"hash" default:"md5" help:"Content hash for dedup, or empty to always upload"`
	Poll        time.Duration `name:"poll" default:"500ms" help:"Status poll interval"`
}

type InitCommand struct {
	schema.InitRequest
}

type UploadIdCommand struct {
	UploadId string `arg:"" name:"id" help:"Upload id"`
}

type PartCommand struct {
	UploadIdCommand
	Part int    `arg:"" name:"part" help:"Part number, starting at 1"`
	Path string `arg:"" type:"existingfile" help:"Local file holding the part data"`
}

type CompleteCommand struct {
	UploadIdCommand
	Key   string   `arg:"" name:"key" help:"Storage key returned by init"`
	ETags []string `arg:"" name:"etag" help:"Part ETags, in part order"`
}

type StatusCommand struct {
	UploadIdCommand
	Wait bool `name:"wait" short:"w" help:"Poll until the merge finishes"`
}

type AbortCommand struct {
	UploadIdCommand
}

type DedupCommand struct {
	schema.DedupRequest
}

type PresignCommand struct {
	Key    string        `arg:"" name:"key" help:"Storage key"`
	Method string        `name:"method" default:"GET" help:"HTTP method the URL is signed for"`
	TTL    time.Duration `name:"ttl" default:"1h" help:"Lifetime of the signed URL"`
}

///////////////////////////////////////////////////////////////////////////////
// COMMANDS

func (cmd *UploadFileCommand) Run(ctx *Globals) error {
	c, err := ctx.Client()
	if err != nil {
		return err
	}

	f, err := os.Open(cmd.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	name := cmd.Name
	if name == "" {
		name = filepath.Base(cmd.Path)
	}

	opts := []httpclient.UploadOpt{
		httpclient.WithPartSize(cmd.PartSize),
		httpclient.WithConcurrency(cmd.Concurrency),
		httpclient.WithRetries(cmd.Retries),
		httpclient.WithPollInterval(cmd.Poll),
		httpclient.WithHash(cmd.Hash),
	}
	if cmd.ContentType != "" {
		opts = append(opts, httpclient.WithContentType(cmd.ContentType))
	}
	tty := isatty.IsTerminal(os.Stderr.Fd())
	if tty {
		opts = append(opts, httpclient.WithUploadProgress(func(written, total int64) {
			pct := int64(100)
			if total > 0 {
				pct = written * 100 / total
			}
			fmt.Fprintf(os.Stderr, "\r\x1b[K  %5d%%  %6s  \x1b[1m%s\x1b[0m", pct, humanSize(written), name)
		}))
	}

	result, err := c.Upload(ctx.ctx, name, f, info.Size(), opts...)
	if tty {
		fmt.Fprint(os.Stderr, "\r\x1b[K")
	}
	if err != nil {
		return err
	}
	if ctx.Debug {
		return prettyJSON(result)
	}
	switch {
	case result.Deduplicated:
		fmt.Fprintf(os.Stderr, "  %6s  %s (already stored)\n", humanSize(info.Size()), name)
	case result.Status == schema.StatusFailed:
		return fmt.Errorf("%s: upload %s failed", name, result.UploadId)
	default:
		fmt.Fprintf(os.Stderr, "  %6s  %s\n", humanSize(info.Size()), name)
	}
	fmt.Println(result.Url)
	return nil
}

func (cmd *InitCommand) Run(ctx *Globals) error {
	c, err := ctx.Client()
	if err != nil {
		return err
	}
	resp, err := c.Init(ctx.ctx, cmd.InitRequest)
	if err != nil {
		return err
	}
	return prettyJSON(resp)
}

func (cmd *PartCommand) Run(ctx *Globals) error {
	c, err := ctx.Client()
	if err != nil {
		return err
	}
	data, err := os.ReadFile(cmd.Path)
	if err != nil {
		return err
	}
	resp, err := c.UploadPart(ctx.ctx, cmd.UploadId, cmd.Part, data)
	if err != nil {
		return err
	}
	return prettyJSON(resp)
}

func (cmd *CompleteCommand) Run(ctx *Globals) error {
	c, err := ctx.Client()
	if err != nil {
		return err
	}
	resp, err := c.Complete(ctx.ctx, cmd.UploadId, schema.CompleteRequest{
		StorageKey: cmd.Key,
		ETags:      cmd.ETags,
	})
	if err != nil {
		return err
	}
	return prettyJSON(resp)
}

func (cmd *StatusCommand) Run(ctx *Globals) error {
	c, err := ctx.Client()
	if err != nil {
		return err
	}
	var resp *schema.StatusResponse
	if cmd.Wait {
		resp, err = c.Wait(ctx.ctx, cmd.UploadId, httpclient.DefaultPollInterval)
	} else {
		resp, err = c.Status(ctx.ctx, cmd.UploadId)
	}
	if err != nil {
		return err
	}
	return prettyJSON(resp)
}

func (cmd *AbortCommand) Run(ctx *Globals) error {
	c, err := ctx.Client()
	if err != nil {
		return err
	}
	return c.Abort(ctx.ctx, cmd.UploadId)
}

func (cmd *DedupCommand) Run(ctx *Globals) error {
	c, err := ctx.Client()
	if err != nil {
		return err
	}
	resp, err := c.Dedup(ctx.ctx, cmd.DedupRequest)
	if err != nil {
		return err
	}
	return prettyJSON(resp)
}

func (cmd *PresignCommand) Run(ctx *Globals) error {
	c, err := ctx.Client()
	if err != nil {
		return err
	}
	resp, err := c.Presign(ctx.ctx, schema.PresignRequest{
		Key:    cmd.Key,
		Method: strings.ToUpper(cmd.Method),
		TTL:    cmd.TTL,
	})
	if err != nil {
		return err
	}
	return prettyJSON(resp)
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// humanSize formats a byte count as a human-readable string.
func humanSize(n int64) string {
	const (
		KB = int64(1024)
		MB = 1024 * KB
		GB = 1024 * MB
		TB = 1024 * GB
	)
	switch {
	case n >= 1000*GB:
		return fmt.Sprintf("%.1fT", float64(n)/float64(TB))
	case n >= 1000*MB:
		return fmt.Sprintf("%.1fG", float64(n)/float64(GB))
	case n >= 1000*KB:
		return fmt.Sprintf("%.1fM", float64(n)/float64(MB))
	case n >= KB:
		return fmt.Sprintf("%.1fK", float64(n)/float64(KB))
	default:
		return fmt.Sprintf("%dB", n)
	}
}
