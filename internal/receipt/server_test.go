package receipt

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"regexp"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"github.com/xuri/excelize/v2"
)

func multipartBody(field string, files map[string]string) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for name, content := range files {
		part, err := writer.CreateFormFile(field, name)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write([]byte(content))
		Expect(err).NotTo(HaveOccurred())
	}
	Expect(writer.Close()).To(Succeed())
	return body, writer.FormDataContentType()
}

func decodeBody(resp *http.Response, v any) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	Expect(json.Unmarshal(body, v)).To(Succeed())
}

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		extractor   *mockExtractor
		service     *Service
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		server = NewServerWithMux(service, auth, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		for _, method := range []string{"GET", "POST", "DELETE", "OPTIONS"} {
			ghttpServer.RouteToHandler(method, regexp.MustCompile(`.*`), server.Handler().ServeHTTP)
		}
	}

	do := func(method, path string, body io.Reader, contentType string) *http.Response {
		req, err := http.NewRequest(method, ghttpServer.URL()+path, body)
		Expect(err).NotTo(HaveOccurred())
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		extractor = &mockExtractor{text: receiptText}
		service = newTestService(db, storage, extractor, &mockTimeSource{now: time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)})
		auth = BasicAuth{}
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	Describe("POST /api/receipts", func() {
		upload := func(files map[string]string) *http.Response {
			body, contentType := multipartBody("pdf", files)
			return do("POST", "/api/receipts", body, contentType)
		}

		When("a valid receipt is uploaded", func() {
			It("should return Created with the import result", func() {
				resp := upload(map[string]string{"bon.pdf": "%PDF-1.4"})
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))

				var out struct {
					Results []ImportResult `json:"results"`
				}
				decodeBody(resp, &out)
				Expect(out.Results).To(HaveLen(1))
				Expect(out.Results[0].Status).To(Equal(ImportSuccess))
				Expect(out.Results[0].ItemCount).To(Equal(5))
			})
		})

		When("the same receipt is uploaded twice", func() {
			It("should return Conflict the second time", func() {
				upload(map[string]string{"bon.pdf": "%PDF-1.4"}).Body.Close()
				resp := upload(map[string]string{"bon.pdf": "%PDF-1.4"})
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusConflict))
			})
		})

		When("the receipt cannot be parsed", func() {
			BeforeEach(func() {
				extractor.text = "nothing useful"
			})

			It("should return Unprocessable Entity", func() {
				resp := upload(map[string]string{"bon.pdf": "%PDF-1.4"})
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
			})
		})

		When("a file is not a PDF", func() {
			It("should return Bad Request", func() {
				resp := upload(map[string]string{"bon.pdf": "%PDF-1.4", "photo.jpg": "jpeg"})
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				var out map[string]string
				decodeBody(resp, &out)
				Expect(out["error"]).To(ContainSubstring("only PDF files are accepted"))
				Expect(db.receipts).To(BeEmpty())
			})
		})

		When("no file is sent", func() {
			It("should return Bad Request", func() {
				resp := upload(map[string]string{})
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})

		When("the body is larger than the upload limit", func() {
			It("should return Request Entity Too Large without importing", func() {
				server.maxUploadSize = 1024
				resp := upload(map[string]string{"bon.pdf": strings.Repeat("x", 4096)})
				Expect(resp.StatusCode).To(Equal(http.StatusRequestEntityTooLarge))
				var out map[string]string
				decodeBody(resp, &out)
				Expect(out["error"]).To(ContainSubstring("too large"))
				Expect(db.receipts).To(BeEmpty())
				Expect(db.logs).To(BeEmpty())
			})
		})

		When("the body is not multipart", func() {
			It("should return Bad Request", func() {
				resp := do("POST", "/api/receipts", strings.NewReader("x"), "text/plain")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("POST /api/parse", func() {
		It("should return the preview without storing", func() {
			resp := do("POST", "/api/parse", strings.NewReader(receiptText), "text/plain")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var preview Preview
			decodeBody(resp, &preview)
			Expect(preview.Result.Success).To(BeTrue())
			Expect(preview.Result.Lines).To(HaveLen(5))
			Expect(preview.Matches).To(HaveLen(2))
			Expect(db.receipts).To(BeEmpty())
		})
	})

	Context("with a stored receipt", func() {
		BeforeEach(func() {
			receipt := NewReceipt("r1", DefaultStore, time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC), dec("12.00"), time.Now())
			receipt.Filename = "r1_receipt.pdf"
			receipt.OriginalFilename = "receipt.pdf"
			receipt.LineItems = []*LineItem{
				{ID: "li-1", ProductName: "KIWI", IsBonus: true, TotalPrice: dec("2.00")},
				{ID: "li-2", ProductName: "KAAS", IsBonus: true, TotalPrice: dec("10.00"), DiscountAmount: dec("1.00")},
			}
			db.receipts["r1"] = receipt
			db.bonuses["b1"] = &UnmatchedBonus{ID: "b1", ReceiptID: "r1", RawName: "KIWIGOUD", DiscountAmount: dec("0.50"), Status: BonusPending}
			db.bonuses["other"] = &UnmatchedBonus{ID: "other", ReceiptID: "r2", Status: BonusPending}
			storage.files["r1_receipt.pdf"] = []byte("%PDF-1.4 r1")
		})

		Describe("GET /api/receipts", func() {
			It("should list the receipts", func() {
				resp := do("GET", "/api/receipts", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				var receipts []*Receipt
				decodeBody(resp, &receipts)
				Expect(receipts).To(HaveLen(1))
			})
		})

		Describe("GET /api/receipts/{id}", func() {
			It("should return the receipt with its total discount", func() {
				resp := do("GET", "/api/receipts/r1", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				var out struct {
					Receipt       Receipt `json:"receipt"`
					TotalDiscount string  `json:"total_discount"`
				}
				decodeBody(resp, &out)
				Expect(out.Receipt.ID).To(Equal("r1"))
				Expect(out.TotalDiscount).To(Equal("1"))
			})

			It("should return Not Found for an unknown receipt", func() {
				resp := do("GET", "/api/receipts/nope", nil, "")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			})

			It("should return Internal Server Error when the store fails", func() {
				db.getErr = errors.New("bolt: database not open")
				resp := do("GET", "/api/receipts/r1", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				var out map[string]string
				decodeBody(resp, &out)
				Expect(out["error"]).To(Equal("Internal server error"))
			})
		})

		Describe("GET /api/receipts/{id}/file", func() {
			It("should return the PDF", func() {
				resp := do("GET", "/api/receipts/r1/file", nil, "")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/pdf"))
				Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring(`filename="receipt.pdf"`))
				body, _ := io.ReadAll(resp.Body)
				Expect(string(body)).To(Equal("%PDF-1.4 r1"))
			})

			It("should return Not Found when the file is missing", func() {
				delete(storage.files, "r1_receipt.pdf")
				resp := do("GET", "/api/receipts/r1/file", nil, "")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			})
		})

		Describe("DELETE /api/receipts/{id}", func() {
			It("should return No Content", func() {
				resp := do("DELETE", "/api/receipts/r1", nil, "")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
				Expect(db.receipts).NotTo(HaveKey("r1"))
			})

			It("should return Not Found for an unknown receipt", func() {
				resp := do("DELETE", "/api/receipts/nope", nil, "")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			})
		})

		Describe("GET /api/receipts/{id}/bonuses", func() {
			It("should return the pending bonuses and line items", func() {
				resp := do("GET", "/api/receipts/r1/bonuses", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				var pending PendingBonuses
				decodeBody(resp, &pending)
				Expect(pending.Bonuses).To(HaveLen(1))
				Expect(pending.LineItems).To(HaveLen(2))
			})

			It("should return Not Found for an unknown receipt", func() {
				resp := do("GET", "/api/receipts/nope/bonuses", nil, "")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			})
		})

		Describe("POST /api/receipts/{id}/bonuses/{bonusID}", func() {
			resolve := func(receiptID, bonusID, body string) *http.Response {
				return do("POST", "/api/receipts/"+receiptID+"/bonuses/"+bonusID, strings.NewReader(body), "application/json")
			}

			DescribeTable("status codes",
				func(receiptID, bonusID, body string, code int) {
					resp := resolve(receiptID, bonusID, body)
					defer resp.Body.Close()
					Expect(resp.StatusCode).To(Equal(code))
				},
				Entry("matched", "r1", "b1", `{"line_item_id":"li-1"}`, http.StatusOK),
				Entry("not applicable", "r1", "b1", `{"not_applicable":true}`, http.StatusOK),
				Entry("bonus of another receipt", "r1", "other", `{"not_applicable":true}`, http.StatusForbidden),
				Entry("unknown line item", "r1", "b1", `{"line_item_id":"li-9"}`, http.StatusForbidden),
				Entry("existing discount", "r1", "b1", `{"line_item_id":"li-2"}`, http.StatusConflict),
				Entry("empty resolution", "r1", "b1", `{}`, http.StatusBadRequest),
				Entry("malformed body", "r1", "b1", `{`, http.StatusBadRequest),
				Entry("unknown receipt", "nope", "b1", `{"not_applicable":true}`, http.StatusNotFound),
			)

			It("should return the matched product name", func() {
				resp := resolve("r1", "b1", `{"line_item_id":"li-1"}`)
				var out map[string]any
				decodeBody(resp, &out)
				Expect(out["success"]).To(BeTrue())
				Expect(out["product_name"]).To(Equal("KIWI"))
			})
		})

		Describe("GET /api/export.xlsx", func() {
			It("should return a workbook with one row per line item", func() {
				resp := do("GET", "/api/export.xlsx", nil, "")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("line-items.xlsx"))

				f, err := excelize.OpenReader(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				defer f.Close()
				rows, err := f.GetRows(exportSheet)
				Expect(err).NotTo(HaveOccurred())
				Expect(rows).To(HaveLen(3))
				Expect(rows[0][3]).To(Equal("Product"))
				Expect(rows[1][3]).To(Equal("KIWI"))
				Expect(rows[2][8]).To(Equal("1"))
				Expect(rows[2][9]).To(Equal("9"))
			})
		})
	})

	Describe("GET /api/products", func() {
		It("should list products", func() {
			db.products["kiwi"] = &Product{ID: "p1", Name: "KIWI", NormalizedName: "kiwi"}
			resp := do("GET", "/api/products", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var products []*Product
			decodeBody(resp, &products)
			Expect(products).To(HaveLen(1))
		})
	})

	Describe("GET /api/imports", func() {
		It("should list the import history", func() {
			db.logs = []*ImportLog{{ID: "l1", Status: ImportFailed, Filename: "x.pdf"}}
			resp := do("GET", "/api/imports", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var logs []*ImportLog
			decodeBody(resp, &logs)
			Expect(logs).To(HaveLen(1))
			Expect(logs[0].Status).To(Equal(ImportFailed))
		})
	})

	Describe("CORS", func() {
		It("should answer preflight requests", func() {
			resp := do("OPTIONS", "/api/receipts", nil, "")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "user", Password: "secret"}
			setupServer()
		})

		It("should reject requests without credentials", func() {
			resp := do("GET", "/api/receipts", nil, "")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Bonus Tracker"))
		})

		It("should reject wrong credentials", func() {
			req, _ := http.NewRequest("GET", ghttpServer.URL()+"/api/receipts", nil)
			req.SetBasicAuth("user", "wrong")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("should accept valid credentials", func() {
			req, _ := http.NewRequest("GET", ghttpServer.URL()+"/api/receipts", nil)
			req.SetBasicAuth("user", "secret")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})
})
