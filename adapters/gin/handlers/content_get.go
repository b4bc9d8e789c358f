package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PaulFidika/contentgate/adapters/ginutil"
	"github.com/PaulFidika/contentgate/content"
	core "github.com/PaulFidika/contentgate/core"
	"github.com/PaulFidika/contentgate/identity"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type grantResponse struct {
	URL              string `json:"url"`
	ExpiresInSeconds int64  `json:"expiresInSeconds"`
	ContentID        string `json:"contentId"`
}

// HandleContentGET serves GET /content/:kind?id=&chapterId=. Videos get a JSON
// grant; PDFs are streamed through the signed URL with cache validators.
func HandleContentGET(svc *core.Service, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.Allow(c, rl, ginutil.RLContent) {
			ginutil.TooMany(c)
			return
		}
		kind, ok := content.ParseKind(c.Param("kind"))
		if !ok {
			ginutil.BadRequest(c, core.CodeInvalidRequest)
			return
		}
		ref := content.Ref{ID: strings.TrimSpace(c.Query("id")), ChapterID: strings.TrimSpace(c.Query("chapterId"))}
		if ref.ID == "" || ref.ChapterID == "" {
			ginutil.BadRequest(c, core.CodeInvalidRequest)
			return
		}
		id, ok := identity.FromContext(c.Request.Context())
		if !ok {
			ginutil.Unauthorized(c)
			return
		}

		g, err := svc.Grant(c.Request.Context(), id, ref, kind)
		if err != nil {
			fail(c, err)
			return
		}
		ttl := int64(g.ExpiresIn(time.Now()).Round(time.Second) / time.Second)

		if kind == content.KindVideo {
			c.Header("Cache-Control", "no-store")
			c.JSON(http.StatusOK, grantResponse{URL: g.URL, ExpiresInSeconds: ttl, ContentID: g.ContentID})
			return
		}

		doc, err := svc.FetchDocument(c.Request.Context(), g, c.GetHeader("If-None-Match"))
		if err != nil {
			fail(c, err)
			return
		}
		c.Header("Cache-Control", "private, max-age="+strconv.FormatInt(max(ttl, 0), 10))
		if doc.ETag != "" {
			c.Header("ETag", doc.ETag)
		}
		if !doc.LastModified.IsZero() {
			c.Header("Last-Modified", doc.LastModified.UTC().Format(http.TimeFormat))
		}
		if doc.NotModified {
			c.Status(http.StatusNotModified)
			c.Writer.WriteHeaderNow()
			return
		}
		ctype := doc.ContentType
		if ctype == "" || ctype == "application/octet-stream" {
			ctype = "application/pdf"
		}
		c.Data(http.StatusOK, ctype, doc.Body)
	}
}

func fail(c *gin.Context, err error) {
	f := core.Classify(err)
	if f.Status >= http.StatusInternalServerError {
		logrus.WithError(err).WithFields(logrus.Fields{
			"path": c.Request.URL.Path,
			"code": f.Code,
		}).Warn("content request failed")
	}
	ginutil.Fail(c, f)
}
