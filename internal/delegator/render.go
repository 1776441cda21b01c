// ABOUTME: Renders response payloads as markdown and converts them to HTML
// ABOUTME: Used for HTTP requests that ask for format=html

package delegator

import (
	"bytes"
	"fmt"
	"slices"
	"strconv"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/2389/recgate/internal/protocol"
	"github.com/2389/recgate/internal/service"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.Table))

func renderHTML(resp *protocol.Response) ([]byte, error) {
	var md bytes.Buffer
	writeMarkdown(&md, resp)

	var out bytes.Buffer
	if err := markdown.Convert(md.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("converting markdown: %w", err)
	}
	return out.Bytes(), nil
}

func writeMarkdown(md *bytes.Buffer, resp *protocol.Response) {
	fmt.Fprintf(md, "# %s\n\n", resp.Action)

	switch {
	case resp.IDs != nil:
		if len(resp.IDs) == 0 {
			md.WriteString("_none_\n")
		}
		for _, id := range resp.IDs {
			fmt.Fprintf(md, "- %d\n", id)
		}
	case resp.Rating != nil:
		writeRatings(md, resp.Rating)
	case resp.Profile != nil:
		rows := [][2]string{{"id", strconv.Itoa(resp.Profile.ID)}}
		if resp.Profile.ExternalID != "" {
			rows = append(rows, [2]string{"external id", resp.Profile.ExternalID})
		}
		for _, k := range sortedKeys(resp.Profile.Attributes) {
			rows = append(rows, [2]string{k, resp.Profile.Attributes[k]})
		}
		writeTable(md, "field", "value", rows)
	case resp.ExternalRecord != nil:
		r := resp.ExternalRecord
		writeTable(md, "field", "value", [][2]string{
			{"internal id", strconv.Itoa(r.InternalID)},
			{"external id", r.ExternalID},
			{"source", r.Source},
		})
	case resp.Nominal != nil:
		n := resp.Nominal
		writeTable(md, "field", "value", [][2]string{
			{"attribute", n.Attribute},
			{"index", strconv.Itoa(n.Index)},
			{"value", n.Value},
			{"parent index", strconv.Itoa(n.ParentIndex)},
		})
	case resp.OK != nil:
		fmt.Fprintf(md, "ok: **%t**\n", *resp.OK)
	case resp.Status != nil:
		s := resp.Status
		writeTable(md, "field", "value", [][2]string{
			{"name", s.Name},
			{"version", s.Version},
			{"activity", strconv.FormatFloat(s.Activity.Level, 'g', -1, 64)},
			{"users", strconv.Itoa(s.Users)},
			{"items", strconv.Itoa(s.Items)},
			{"ratings", strconv.Itoa(s.Ratings)},
		})
	}
}

func writeRatings(md *bytes.Buffer, v *service.RatingVector) {
	fmt.Fprintf(md, "Subject **%d**\n\n", v.ID)
	ids := make([]int, 0, len(v.Ratings))
	for id := range v.Ratings {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	rows := make([][2]string, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, [2]string{strconv.Itoa(id), strconv.FormatFloat(v.Ratings[id], 'g', -1, 64)})
	}
	writeTable(md, "id", "rating", rows)
}

func writeTable(md *bytes.Buffer, left, right string, rows [][2]string) {
	fmt.Fprintf(md, "| %s | %s |\n| --- | --- |\n", left, right)
	for _, r := range rows {
		fmt.Fprintf(md, "| %s | %s |\n", r[0], r[1])
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
