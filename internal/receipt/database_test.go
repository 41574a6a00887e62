package receipt

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/receipt-extractor/internal/extraction"
)

var _ = Describe("BoltDB", func() {
	var (
		tmpDir string
		dbPath string
		db     *BoltDB
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		dbPath = filepath.Join(tmpDir, "test.db")
		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("SaveExtraction", func() {
		var (
			e   *Extraction
			err error
		)

		BeforeEach(func() {
			vendor := "REWE"
			e = &Extraction{
				ID:        "test-id",
				Files:     []FileInfo{{Filename: "a.jpg", ContentType: "image/jpeg", Size: 3}},
				Result:    &extraction.ReceiptData{Vendor: &vendor, RawText: "{}"},
				CreatedAt: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
			}
		})

		JustBeforeEach(func() {
			err = db.SaveExtraction(e)
		})

		When("saving succeeds", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should round-trip the record", func() {
				saved, getErr := db.GetExtraction("test-id")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(saved).To(Equal(e))
			})
		})
	})

	Describe("GetExtraction", func() {
		When("the extraction does not exist", func() {
			It("returns ErrNotFound", func() {
				_, err := db.GetExtraction("missing")
				Expect(err).To(MatchError(ErrNotFound))
			})
		})
	})

	Describe("ListExtractions", func() {
		BeforeEach(func() {
			for _, id := range []string{"0001", "0003", "0002"} {
				Expect(db.SaveExtraction(&Extraction{ID: id, ErrorKind: "input"})).To(Succeed())
			}
		})

		It("should return newest first", func() {
			list, err := db.ListExtractions(0)
			Expect(err).NotTo(HaveOccurred())
			ids := make([]string, 0, len(list))
			for _, e := range list {
				ids = append(ids, e.ID)
			}
			Expect(ids).To(Equal([]string{"0003", "0002", "0001"}))
		})

		It("should honor the limit", func() {
			list, err := db.ListExtractions(2)
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(HaveLen(2))
		})
	})

	When("the database is empty", func() {
		It("should return an empty list", func() {
			list, err := db.ListExtractions(10)
			Expect(err).NotTo(HaveOccurred())
			Expect(list).NotTo(BeNil())
			Expect(list).To(BeEmpty())
		})
	})
})
