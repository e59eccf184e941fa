package git

import (
	"fmt"
	"strings"
	"time"

	"github.com/kurihiro0119/docsync/internal/domain"
)

// fields are separated by US and records terminated by RS
const logFormat = "%H%x1f%P%x1f%an%x1f%cn%x1f%cI%x1f%B%x1e"

func parseLog(output []byte) ([]*domain.Commit, error) {
	var commits []*domain.Commit
	for _, record := range strings.Split(string(output), "\x1e") {
		record = strings.TrimLeft(record, "\r\n")
		if strings.TrimSpace(record) == "" {
			continue
		}

		fields := strings.SplitN(record, "\x1f", 6)
		if len(fields) != 6 {
			return nil, fmt.Errorf("unexpected git log record: %q", record)
		}

		committedAt, err := time.Parse(time.RFC3339, fields[4])
		if err != nil {
			return nil, fmt.Errorf("invalid commit date %q: %w", fields[4], err)
		}

		commits = append(commits, &domain.Commit{
			Sha:           fields[0],
			Parents:       strings.Fields(fields[1]),
			AuthorName:    fields[2],
			CommitterName: fields[3],
			CommittedAt:   committedAt,
			Message:       strings.TrimRight(fields[5], "\n"),
		})
	}
	return commits, nil
}
