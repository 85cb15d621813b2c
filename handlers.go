package main

import (
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
)

const (
	maxBodyBytes    = 10 << 20
	notFoundMessage = "Post not found."
)

type Blog struct {
	cfg       *Config
	store     *Store
	gate      *Gate
	templates map[string]*template.Template
}

func NewBlog(cfg *Config, store *Store, sessions sessionBackend) *Blog {
	return &Blog{
		cfg:       cfg,
		store:     store,
		gate:      NewGate(cfg, sessions),
		templates: loadTemplates(),
	}
}

// serverError logs err and answers with a body that reveals nothing about it.
func (b *Blog) serverError(w http.ResponseWriter, r *http.Request, err error) {
	loggerFrom(r.Context()).Error("request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Any("error", err))
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func (b *Blog) notFound(w http.ResponseWriter) {
	http.Error(w, notFoundMessage, http.StatusNotFound)
}

func (b *Blog) parseForm(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return false
		}
		http.Error(w, "Bad request", http.StatusBadRequest)
		return false
	}
	return true
}

// postID parses the {id} path value. Ids that can never match a row are
// answered like missing posts.
func (b *Blog) postID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		b.notFound(w)
		return 0, false
	}
	return id, true
}

// writeID parses the {id} of a write route. ok is false when the id cannot
// name any post, in which case the write matches nothing.
func writeID(r *http.Request) (id int64, ok bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

func postFromForm(r *http.Request) Post {
	return Post{
		Title:   r.FormValue("title"),
		Summary: r.FormValue("summary"),
		Content: r.FormValue("content"),
		LinkURL: r.FormValue("link_url"),
	}
}

func (b *Blog) Home(w http.ResponseWriter, r *http.Request) {
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

	b.render(w, r, http.StatusOK, "index.html", map[string]any{
		"Title": title,
		"Intro": intro,
		"Posts": posts,
	})
}

func (b *Blog) Detail(w http.ResponseWriter, r *http.Request) {
	id, ok := b.postID(w, r)
	if !ok {
		return
	}

	post, err := b.store.GetPost(r.Context(), id)
	if errors.Is(err, errNotFound) {
		b.notFound(w)
		return
	}
	if err != nil {
		b.serverError(w, r, err)
		return
	}

	b.render(w, r, http.StatusOK, "post_detail.html", map[string]any{
		"Title": post.Title,
		"Post":  post,
	})
}

func (b *Blog) WriteForm(w http.ResponseWriter, r *http.Request) {
	b.render(w, r, http.StatusOK, "post_form.html", map[string]any{
		"Title":  "New Post",
		"Mode":   "create",
		"Action": "/admin/write",
		"Post":   &Post{},
	})
}

func (b *Blog) Create(w http.ResponseWriter, r *http.Request) {
	if !b.parseForm(w, r) {
		return
	}

	p := postFromForm(r)
	id, err := b.store.CreatePost(r.Context(), p.Title, p.Summary, p.Content, p.LinkURL)
	if err != nil {
		b.serverError(w, r, err)
		return
	}

	postWritesTotal.WithLabelValues("create").Inc()
	loggerFrom(r.Context()).Info("post created", slog.Int64("id", id))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (b *Blog) EditForm(w http.ResponseWriter, r *http.Request) {
	id, ok := b.postID(w, r)
	if !ok {
		return
	}

	post, err := b.store.GetPost(r.Context(), id)
	if errors.Is(err, errNotFound) {
		b.notFound(w)
		return
	}
	if err != nil {
		b.serverError(w, r, err)
		return
	}

	b.render(w, r, http.StatusOK, "post_form.html", map[string]any{
		"Title":  fmt.Sprintf("Editing %q", post.Title),
		"Mode":   "edit",
		"Action": fmt.Sprintf("/admin/edit/%d", post.ID),
		"Post":   post,
	})
}

func (b *Blog) Update(w http.ResponseWriter, r *http.Request) {
	if !b.parseForm(w, r) {
		return
	}

	id, ok := writeID(r)
	if !ok {
		http.Redirect(w, r, "/post/"+url.PathEscape(r.PathValue("id")), http.StatusSeeOther)
		return
	}

	p := postFromForm(r)
	if err := b.store.UpdatePost(r.Context(), id, p.Title, p.Summary, p.Content, p.LinkURL); err != nil {
		b.serverError(w, r, err)
		return
	}

	postWritesTotal.WithLabelValues("update").Inc()
	loggerFrom(r.Context()).Info("post updated", slog.Int64("id", id))
	http.Redirect(w, r, fmt.Sprintf("/post/%d", id), http.StatusSeeOther)
}

func (b *Blog) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := writeID(r)
	if !ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	if err := b.store.DeletePost(r.Context(), id); err != nil {
		b.serverError(w, r, err)
		return
	}

	postWritesTotal.WithLabelValues("delete").Inc()
	loggerFrom(r.Context()).Info("post deleted", slog.Int64("id", id))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (b *Blog) Health(w http.ResponseWriter, r *http.Request) {
	if err := b.store.Ping(r.Context()); err != nil {
		loggerFrom(r.Context()).Warn("health check failed", slog.Any("error", err))
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}
