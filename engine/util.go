package engine

import "strconv"

func formatChannelID(id int32) string {
	return strconv.FormatInt(int64(id), 10)
}
