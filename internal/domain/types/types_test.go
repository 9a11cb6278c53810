package types_test

import (
	"encoding/json"
	"testing"

	types "github.com/okian/arena/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestEntry(t *testing.T) {
	Convey("Given a leaderboard entry", t, func() {
		entry := types.Entry{Rank: 1, ModelID: 3, Name: "orca", Version: "1", TotalBattles: 4, Wins: 3, WinRate: 75}

		Convey("When it is encoded", func() {
			raw, err := json.Marshal(entry)
			So(err, ShouldBeNil)

			Convey("Then it should use the leaderboard field names", func() {
				var m map[string]any
				So(json.Unmarshal(raw, &m), ShouldBeNil)
				So(m["model_id"], ShouldEqual, 3.0)
				So(m["total_battles"], ShouldEqual, 4.0)
				So(m["win_rate"], ShouldEqual, 75.0)
			})
		})
	})
}
