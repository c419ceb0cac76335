package model_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/okian/certifica/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestTaxonomy(t *testing.T) {
	Convey("Given categories and KPIs authored out of order", t, func() {
		tax := model.NewTaxonomy(
			[]model.Category{
				{ID: "met", Name: "Metodología", Weight: 40, OrderIndex: 2},
				{ID: "inf", Name: "Infraestructura", Weight: 60, OrderIndex: 1},
			},
			[]model.KPI{
				{ID: "k2", CategoryID: "inf", Name: "Vestuarios", OrderIndex: 2, MaxScore: 10},
				{ID: "k1", CategoryID: "inf", Name: "Campos", OrderIndex: 1},
				{ID: "k3", CategoryID: "met", Name: "Plan de entrenamiento", OrderIndex: 1, MaxScore: 5},
				{ID: "orphan", CategoryID: "gone", Name: "Huérfano"},
			},
		)

		Convey("Then categories follow order_index", func() {
			cats := tax.Categories()
			So(cats, ShouldHaveLength, 2)
			So(cats[0].ID, ShouldEqual, "inf")
			So(cats[1].ID, ShouldEqual, "met")
		})

		Convey("Then KPIs within a category follow order_index", func() {
			kpis := tax.KPIs("inf")
			So(kpis, ShouldHaveLength, 2)
			So(kpis[0].ID, ShouldEqual, "k1")
			So(kpis[1].ID, ShouldEqual, "k2")
		})

		Convey("Then a KPI without max score gets the default", func() {
			k, ok := tax.KPI("k1")
			So(ok, ShouldBeTrue)
			So(k.MaxScore, ShouldEqual, model.DefaultMaxScore)
		})

		Convey("Then KPIs of unknown categories are not part of the taxonomy", func() {
			_, ok := tax.KPI("orphan")
			So(ok, ShouldBeFalse)
			So(tax.AllKPIs(), ShouldHaveLength, 3)
		})

		Convey("Then weights summing to 100 pass the authoring check", func() {
			So(tax.TotalWeight(), ShouldEqual, 100)
			So(tax.CheckWeights(), ShouldBeNil)
		})

		Convey("When the snapshot is serialized and rebuilt", func() {
			raw, err := json.Marshal(tax.Snapshot())
			So(err, ShouldBeNil)
			var snap model.Snapshot
			So(json.Unmarshal(raw, &snap), ShouldBeNil)
			rebuilt := snap.Taxonomy()

			Convey("Then order and KPIs survive", func() {
				So(rebuilt.Categories(), ShouldResemble, tax.Categories())
				So(rebuilt.AllKPIs(), ShouldResemble, tax.AllKPIs())
			})
		})
	})

	Convey("Given weights that do not add up", t, func() {
		tax := model.NewTaxonomy([]model.Category{{ID: "a", Weight: 70}, {ID: "b", Weight: 20}}, nil)

		Convey("Then the authoring check reports it", func() {
			So(errors.Is(tax.CheckWeights(), model.ErrWeightSum), ShouldBeTrue)
		})
	})
}

func TestAction(t *testing.T) {
	Convey("Given action kinds", t, func() {
		So(model.ActionInsert.Valid(), ShouldBeTrue)
		So(model.ActionUpdate.Valid(), ShouldBeTrue)
		So(model.ActionDelete.Valid(), ShouldBeTrue)
		So(model.ActionKind("upsert").Valid(), ShouldBeFalse)
	})

	Convey("Given an action payload", t, func() {
		Convey("Then the record id is read from the data", func() {
			id, ok := model.Action{Data: map[string]any{"id": "e-1"}}.RecordID()
			So(ok, ShouldBeTrue)
			So(id, ShouldEqual, "e-1")
		})

		Convey("Then a missing or non-string id is reported", func() {
			_, ok := model.Action{Data: map[string]any{"id": 7}}.RecordID()
			So(ok, ShouldBeFalse)
			_, ok = model.Action{}.RecordID()
			So(ok, ShouldBeFalse)
		})
	})
}
