package main

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"time"
)

type rss struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title       string    `xml:"title"`
	Link        string    `xml:"link"`
	Description string    `xml:"description"`
	Items       []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	GUID        string `xml:"guid"`
	PubDate     string `xml:"pubDate"`
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// Feed serves every post as RSS 2.0, newest first.
func (b *Blog) Feed(w http.ResponseWriter, r *http.Request) {
	posts, err := b.store.ListPosts(r.Context())
	if err != nil {
		b.serverError(w, r, err)
		return
	}

	title, intro, err := b.siteSettings(r.Context())
	if err != nil {
		b.serverError(w, r, err)
		return
	}

	base := baseURL(r)
	feed := rss{
		Version: "2.0",
		Channel: rssChannel{
			Title:       title,
			Link:        base + "/",
			Description: intro,
		},
	}

	for _, p := range posts {
		link := fmt.Sprintf("%s/post/%d", base, p.ID)
		feed.Channel.Items = append(feed.Channel.Items, rssItem{
			Title:       p.Title,
			Link:        link,
			Description: p.Summary,
			GUID:        link,
			PubDate:     p.CreatedAt.UTC().Format(time.RFC1123Z),
		})
	}

	out, err := xml.MarshalIndent(feed, "", "  ")
	if err != nil {
		b.serverError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.Write([]byte(xml.Header))
	w.Write(out)
}
