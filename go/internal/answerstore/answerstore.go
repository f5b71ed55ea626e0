// Package answerstore persists submitted answer files.
package answerstore

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/arena/go/internal/models"
)

// Store puts and removes answer objects. Put returns a locator the
// participant's files can later be fetched from.
type Store interface {
	Put(ctx context.Context, key string, part models.AnswerPart) (string, error)
	Delete(ctx context.Context, key string) error
}

// ObjectKey lays answer files out as
// {competitionID}/{identifier}/{part}_{unixnano}_{filename}.
func ObjectKey(competitionID uuid.UUID, identifier, part string, at time.Time, fileName string) string {
	return fmt.Sprintf("%s/%s/%s_%d_%s", competitionID, identifier, part, at.UnixNano(), cleanName(fileName))
}

func cleanName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r == ' ':
			return '_'
		case r < 0x20 || r == 0x7f:
			return -1
		}
		return r
	}, name)
	if name == "" || name == "." || name == "/" {
		return "file"
	}
	return name
}
