package tool

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/agentvault/runtime/internal/rterr"
)

const maxFetchBytes = 5 * 1024 * 1024

var fetchClient = &http.Client{Timeout: 30 * time.Second}

// webfetchTool is not scope-bounded: it never touches the vault
// filesystem, per spec.md's SPEC_FULL.md §B.2.
func webfetchTool(ctx context.Context, args map[string]any, _ string) (any, error) {
	url, err := stringArg(args, "url")
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, rterr.New(rterr.InvalidInput, "url must start with http:// or https://")
	}
	format := "markdown"
	if v, ok := args["format"].(string); ok && v != "" {
		format = v
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, rterr.Wrap(rterr.InvalidInput, err)
	}
	req.Header.Set("User-Agent", "agentvault-runtime/1.0")

	resp, err := fetchClient.Do(req)
	if err != nil {
		return nil, rterr.Wrap(rterr.ToolTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, rterr.New(rterr.ToolTransient, "webfetch failed with status "+resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes+1))
	if err != nil {
		return nil, rterr.Wrap(rterr.ToolTransient, err)
	}
	if len(body) > maxFetchBytes {
		return nil, rterr.New(rterr.InvalidInput, "response exceeds 5MB limit")
	}

	content := string(body)
	contentType := resp.Header.Get("Content-Type")
	isHTML := strings.Contains(contentType, "text/html")

	var output string
	switch format {
	case "markdown":
		if isHTML {
			if output, err = htmlToMarkdown(content); err != nil {
				return nil, err
			}
		} else {
			output = content
		}
	case "text":
		if isHTML {
			if output, err = htmlToText(content); err != nil {
				return nil, err
			}
		} else {
			output = content
		}
	default:
		output = content
	}

	return map[string]any{"url": url, "contentType": contentType, "content": output}, nil
}

func htmlToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", rterr.Wrap(rterr.InvalidInput, err)
	}
	doc.Find("script, style, noscript, iframe, object, embed").Remove()
	return strings.TrimSpace(doc.Text()), nil
}

func htmlToMarkdown(html string) (string, error) {
	converter := md.NewConverter("", true, &md.Options{
		HeadingStyle:     "atx",
		HorizontalRule:   "---",
		BulletListMarker: "-",
		CodeBlockStyle:   "fenced",
		EmDelimiter:      "*",
	})
	converter.Remove("script", "style", "meta", "link")

	out, err := converter.ConvertString(html)
	if err != nil {
		return "", rterr.Wrap(rterr.InvalidInput, err)
	}
	return out, nil
}
