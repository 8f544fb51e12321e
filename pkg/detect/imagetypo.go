package detect

import (
	"fmt"
	"strings"

	"github.com/opscart/k8s-ai-diagnostics/pkg/types"
)

// imageTypos maps known-confusable image name and tag tokens to their
// corrections. Match policy is exact token lookup, not edit distance:
// fuzzy matching would risk "correcting" legitimate image names.
var imageTypos = map[string]string{
	"apline":    "alpine",
	"latst":     "latest",
	"lastest":   "latest",
	"ubunut":    "ubuntu",
	"ngnix":     "nginx",
	"postgress": "postgres",
	"rediss":    "redis",
}

// ImageTypoDetector corrects known typos in image references.
type ImageTypoDetector struct{}

func (d *ImageTypoDetector) Name() string { return "image-typo" }

func (d *ImageTypoDetector) TryDetect(issue types.Issue) (types.Plan, bool) {
	if issue.Reason != types.ReasonImagePullBackOff {
		return types.Plan{}, false
	}
	corrected, token, ok := CorrectImage(issue.CurrentImage)
	if !ok {
		return types.Plan{}, false
	}
	return types.Plan{
		Steps: []types.Step{{
			Action: types.ActionPatchImage,
			Params: types.ActionParams{Image: corrected},
			Rationale: fmt.Sprintf("image token %q is a known typo, correcting %q to %q",
				token, issue.CurrentImage, corrected),
		}},
	}, true
}

// CorrectImage looks every path segment and the tag of an image reference
// up in the typo table. It returns the corrected reference and the typo
// token that matched.
func CorrectImage(image string) (corrected, token string, ok bool) {
	if image == "" {
		return "", "", false
	}
	name, tag := splitImage(image)

	segments := strings.Split(name, "/")
	for i, segment := range segments {
		if fix, hit := imageTypos[strings.ToLower(segment)]; hit {
			token = strings.ToLower(segment)
			segments[i] = fix
			return joinImage(strings.Join(segments, "/"), tag), token, true
		}
	}
	if fix, hit := imageTypos[strings.ToLower(tag)]; hit {
		token = strings.ToLower(tag)
		return joinImage(name, fix), token, true
	}
	return "", "", false
}

func splitImage(image string) (name, tag string) {
	// The tag separator is the colon after the last slash; earlier colons
	// belong to a registry port.
	idx := strings.LastIndex(image, ":")
	if idx > strings.LastIndex(image, "/") {
		return image[:idx], image[idx+1:]
	}
	return image, ""
}

func joinImage(name, tag string) string {
	if tag == "" {
		return name
	}
	return name + ":" + tag
}

func normalizeImage(image string) string {
	return strings.ToLower(strings.TrimSpace(image))
}
