package storage

import "github.com/jackc/pgx/v4"

type postImageRow struct {
	postID   string
	position int32
	path     string
}

type postImageBulk struct {
	rows []postImageRow
	idx  int
}

func (r postImageRow) toInterface() []interface{} {
	return []interface{}{r.postID, r.position, r.path}
}

// postImageRows keeps the order of paths in the position column
func postImageRows(postID string, paths []string) []postImageRow {
	rows := make([]postImageRow, 0, len(paths))
	for i, path := range paths {
		rows = append(rows, postImageRow{
			postID:   postID,
			position: int32(i),
			path:     path,
		})
	}
	return rows
}

func copyFromBulk(rows []postImageRow) pgx.CopyFromSource {
	return &postImageBulk{
		rows: rows,
		idx:  -1,
	}
}

func (b *postImageBulk) Next() bool {
	b.idx++
	return b.idx < len(b.rows)
}

func (b *postImageBulk) Values() ([]interface{}, error) {
	return b.rows[b.idx].toInterface(), nil
}

func (b *postImageBulk) Err() error {
	return nil
}
