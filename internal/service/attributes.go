package service

import (
	"strconv"

	"github.com/noah-isme/sma-originality-api/internal/models"
	"github.com/noah-isme/sma-originality-api/internal/verifier"
	"github.com/noah-isme/sma-originality-api/pkg/config"
)

// assembleAttributes builds the ordered attribute list accompanying uploads
// and attribute updates. The toggles are install-wide configuration; the
// values are passed through to the remote service verbatim.
func assembleAttributes(cfg config.AttributesConfig, naming *models.Naming, userID int64) []verifier.Attribute {
	attrs := make([]verifier.Attribute, 0, 7)
	if cfg.SendSiteName && cfg.SiteName != "" {
		attrs = append(attrs, verifier.Attribute{Name: "site_name", Value: cfg.SiteName})
	}
	if cfg.SendSiteInfo {
		if cfg.SiteDescription != "" {
			attrs = append(attrs, verifier.Attribute{Name: "site_description", Value: cfg.SiteDescription})
		}
		if cfg.SiteURL != "" {
			attrs = append(attrs, verifier.Attribute{Name: "site_url", Value: cfg.SiteURL})
		}
	}
	if naming != nil {
		if cfg.SendCourseName && naming.CourseName != "" {
			attrs = append(attrs, verifier.Attribute{Name: "course_name", Value: naming.CourseName})
		}
		if cfg.SendModuleName && naming.ModuleName != "" {
			attrs = append(attrs, verifier.Attribute{Name: "module_name", Value: naming.ModuleName})
		}
		if cfg.SendTopicName && naming.TopicName != "" {
			attrs = append(attrs, verifier.Attribute{Name: "topic_name", Value: naming.TopicName})
		}
	}
	if cfg.SendAuthorID {
		attrs = append(attrs, verifier.Attribute{Name: "author_id", Value: strconv.FormatInt(userID, 10)})
	}
	return attrs
}
