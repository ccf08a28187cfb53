package feed

import (
	"net/url"
)

// WithProxiedURLs returns a copy of the item with every absolute
// image/media URL rewritten to the same-origin /proxy endpoint, so
// CORS-restricted clients (e.g. the wasm frontend) can load them.
// The rewrite recurses into the quoted post, media attachments and
// repost metadata.
func (i Item) WithProxiedURLs() Item {
	i.AuthorImageURL = proxiedURL(i.AuthorImageURL)

	if i.QuotedPost != nil {
		quoted := i.QuotedPost.WithProxiedURLs()
		i.QuotedPost = &quoted
	}

	if len(i.MediaAttachments) > 0 {
		attachments := make([]MediaAttachment, len(i.MediaAttachments))
		for idx, attachment := range i.MediaAttachments {
			attachment.PreviewImageURL = proxiedURL(attachment.PreviewImageURL)
			attachment.FullURL = proxiedURL(attachment.FullURL)
			attachments[idx] = attachment
		}
		i.MediaAttachments = attachments
	}

	if i.RepostMeta != nil {
		meta := *i.RepostMeta
		meta.RepostingAuthorImageURL = proxiedURL(meta.RepostingAuthorImageURL)
		i.RepostMeta = &meta
	}

	return i
}

func proxiedURL(raw string) string {
	if raw == "" {
		return ""
	}
	return "/proxy?url=" + url.QueryEscape(raw)
}
