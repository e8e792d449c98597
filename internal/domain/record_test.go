package domain

import (
	"errors"
	"testing"
	"time"
)

func TestParseCategoryFromString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    Category
		wantErr bool
	}{
		{name: "valid lowercase", input: "work", want: CategoryWork},
		{name: "valid with spaces and case", input: " Social ", want: CategorySocial},
		{name: "virtual spam filter", input: "spam", want: CategorySpam},
		{name: "virtual all filter", input: "all", want: CategoryAll},
		{name: "invalid", input: "newsletter", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseCategoryFromString(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("ParseCategoryFromString() error = %v, want ErrValidation", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("ParseCategoryFromString() unexpected error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("ParseCategoryFromString() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCategoryIsStorable(t *testing.T) {
	t.Parallel()

	for _, c := range []Category{CategoryWork, CategorySocial, CategoryPromo, CategoryOther} {
		if !c.IsStorable() {
			t.Fatalf("%s should be storable", c)
		}
	}
	for _, c := range []Category{CategorySpam, CategoryAll, Category("bogus")} {
		if c.IsStorable() {
			t.Fatalf("%s should not be storable", c)
		}
	}
}

func TestNotificationRecordValidate(t *testing.T) {
	t.Parallel()

	valid := NotificationRecord{
		ID:            "com.whatsapp:42::1700000000000",
		SourceApp:     "WhatsApp",
		SourcePackage: "com.whatsapp",
		Sender:        "Alice",
		Title:         DefaultTitle,
		Category:      CategorySocial,
		PostedAt:      time.UnixMilli(1_700_000_000_000),
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error = %v", err)
	}

	missingID := valid
	missingID.ID = " "
	if err := missingID.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("Validate() error = %v, want ErrValidation for missing id", err)
	}

	missingPackage := valid
	missingPackage.SourcePackage = ""
	if err := missingPackage.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("Validate() error = %v, want ErrValidation for missing package", err)
	}

	virtualCategory := valid
	virtualCategory.Category = CategorySpam
	if err := virtualCategory.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("Validate() error = %v, want ErrValidation for virtual category", err)
	}
}

func TestNotificationRecordClassification(t *testing.T) {
	t.Parallel()

	var r NotificationRecord
	if r.Classified() {
		t.Fatal("fresh record should be unclassified")
	}
	if r.FlaggedSpam() {
		t.Fatal("unclassified record should not be flagged spam")
	}

	r.SetClassification(true, 0.93)
	if !r.Classified() || !r.FlaggedSpam() {
		t.Fatal("record should be classified and flagged spam")
	}
	if *r.Confidence != 0.93 {
		t.Fatalf("Confidence = %v, want 0.93", *r.Confidence)
	}

	r.SetClassification(false, 0.4)
	if r.FlaggedSpam() {
		t.Fatal("ham verdict should clear the spam flag")
	}
}

func TestRawEventCompositeID(t *testing.T) {
	t.Parallel()

	e := RawEvent{
		PackageName: "com.whatsapp",
		NativeID:    "42",
		Tag:         "msg",
		PostTime:    1_700_000_000_000,
	}
	want := "com.whatsapp:42:msg:1700000000000"
	if got := e.CompositeID(); got != want {
		t.Fatalf("CompositeID() = %s, want %s", got, want)
	}

	// Same event re-delivered yields the same id.
	if e.CompositeID() != e.CompositeID() {
		t.Fatal("CompositeID() must be deterministic")
	}

	noTag := e
	noTag.Tag = ""
	if got := noTag.CompositeID(); got != "com.whatsapp:42::1700000000000" {
		t.Fatalf("CompositeID() without tag = %s", got)
	}
}

func TestRefreshDisplayTime(t *testing.T) {
	t.Parallel()

	r := NotificationRecord{
		PostedAt:    time.Date(2025, 6, 1, 14, 5, 0, 0, time.Local),
		DisplayTime: "garbage from a stale blob",
	}
	r.RefreshDisplayTime()
	if r.DisplayTime != "2:05 PM" {
		t.Fatalf("DisplayTime = %q, want %q", r.DisplayTime, "2:05 PM")
	}
}

func TestRemovalPrefix(t *testing.T) {
	t.Parallel()

	prefix := RemovalPrefix("com.whatsapp", "42")
	if prefix != "com.whatsapp:42" {
		t.Fatalf("RemovalPrefix() = %s", prefix)
	}
}
