package receipt

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zombor/receipt-export/internal/metrics"
)

const completeBatch = `{"receipts": [{
	"id": "abc123456789", "vendor": "Corner Store", "date": "2024-01-15",
	"category": "groceries", "amount": 100, "taxAmount": 5, "quantity": 1
}]}`

const mixedBatch = `{"receipts": [
	{"id": "abc123456789", "vendor": "Corner Store", "date": "2024-01-15", "category": "groceries", "amount": 100, "quantity": 1},
	{"id": "def123456789", "vendor": "", "date": "2024-01-16", "category": "dining", "amount": 20, "quantity": 1}
]}`

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		scanner     *mockScanner
		service     *Service
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
		resp        *http.Response
		body        []byte
	)

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		scanner = newMockScanner()
		service = NewServiceWithDeps(db, scanner, storage,
			&mockIDGenerator{ids: []string{"new-id"}},
			&mockTimeSource{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)})
		auth = BasicAuth{}
	})

	// JustBeforeEach builds the server so tests can adjust auth and mocks first
	JustBeforeEach(func() {
		server = NewServerWithMux(service, auth, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	})

	AfterEach(func() {
		if resp != nil {
			resp.Body.Close()
			resp = nil
		}
		ghttpServer.Close()
	})

	do := func(method, path, contentType string, payload io.Reader) {
		req, err := http.NewRequest(method, ghttpServer.URL()+path, payload)
		Expect(err).NotTo(HaveOccurred())
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		resp, err = http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		body, err = io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
	}

	postJSON := func(path, payload string) {
		do("POST", path, "application/json", strings.NewReader(payload))
	}

	Describe("handleListReceipts", func() {
		When("receipts exist", func() {
			BeforeEach(func() {
				db.receipts["id1"] = readyReceipt("id1")
				db.receipts["id2"] = readyReceipt("id2")
			})

			JustBeforeEach(func() {
				do("GET", "/api/receipts", "", nil)
			})

			It("should return status OK", func() {
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
			})

			It("should return all receipts", func() {
				var receipts []*Receipt
				Expect(json.Unmarshal(body, &receipts)).To(Succeed())
				Expect(receipts).To(HaveLen(2))
			})

			It("should set Content-Type to application/json", func() {
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
			})
		})

		When("no receipts exist", func() {
			It("should return an empty array", func() {
				do("GET", "/api/receipts", "", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(strings.TrimSpace(string(body))).To(Equal("[]"))
			})
		})

		When("the database fails", func() {
			BeforeEach(func() {
				db.listErr = errors.New("db error")
			})

			It("should return status Internal Server Error", func() {
				do("GET", "/api/receipts", "", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			})
		})
	})

	Describe("handleScanReceipt", func() {
		upload := func(field, filename, content string) {
			var buf bytes.Buffer
			writer := multipart.NewWriter(&buf)
			if field != "" {
				part, err := writer.CreateFormFile(field, filename)
				Expect(err).NotTo(HaveOccurred())
				_, err = part.Write([]byte(content))
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(writer.Close()).To(Succeed())
			do("POST", "/api/receipts/scan", writer.FormDataContentType(), &buf)
		}

		When("the upload is scanned", func() {
			JustBeforeEach(func() {
				upload("file", "receipt.jpg", "fake image data")
			})

			It("should return status OK", func() {
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
			})

			It("should return the scanned receipts", func() {
				var receipts []*Receipt
				Expect(json.Unmarshal(body, &receipts)).To(Succeed())
				Expect(receipts).To(HaveLen(1))
				Expect(receipts[0].Vendor).To(Equal("Corner Store"))
				Expect(receipts[0].Filename).To(Equal("new-id_receipt.jpg"))
			})

			It("should not save the receipts", func() {
				Expect(db.receipts).To(BeEmpty())
			})
		})

		When("no file is attached", func() {
			It("should return status Bad Request", func() {
				upload("", "", "")
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(string(body)).To(ContainSubstring("No file was selected"))
			})
		})

		When("scanning fails", func() {
			BeforeEach(func() {
				scanner.scanErr = errors.New("model unavailable")
			})

			It("should return the error", func() {
				upload("file", "receipt.jpg", "fake image data")
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(string(body)).To(ContainSubstring("model unavailable"))
			})
		})
	})

	Describe("handleCreateReceipt", func() {
		When("the body is a receipt", func() {
			JustBeforeEach(func() {
				postJSON("/api/receipts", `{"vendor": "Corner Store", "date": "2024-01-15", "amount": "12.50", "filename": "new-id_receipt.jpg"}`)
			})

			It("should return status Created", func() {
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			})

			It("should save the receipt with a new ID", func() {
				Expect(db.receipts).To(HaveKey("new-id"))
				Expect(db.receipts["new-id"].Filename).To(Equal("new-id_receipt.jpg"))
			})

			It("should default the currency", func() {
				Expect(db.receipts["new-id"].Currency).To(Equal("USD"))
			})
		})

		When("the body is not JSON", func() {
			It("should return status Bad Request", func() {
				postJSON("/api/receipts", "not json")
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("single receipts", func() {
		BeforeEach(func() {
			r := readyReceipt("id1")
			r.ContentType = "image/jpeg"
			db.receipts["id1"] = r
			storage.files["id1_receipt.jpg"] = []byte("image bytes")
		})

		It("should return an existing receipt", func() {
			do("GET", "/api/receipts/id1", "", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(string(body)).To(ContainSubstring(`"vendor":"Corner Store"`))
		})

		It("should return Not Found for a missing receipt", func() {
			do("GET", "/api/receipts/missing", "", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("should return the receipt file", func() {
			do("GET", "/api/receipts/id1/file", "", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/jpeg"))
			Expect(string(body)).To(Equal("image bytes"))
		})

		It("should update a receipt", func() {
			do("PUT", "/api/receipts/id1", "application/json", strings.NewReader(`{"vendor": "Renamed", "amount": 10}`))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(db.receipts["id1"].Vendor).To(Equal("Renamed"))
			Expect(db.receipts["id1"].Filename).To(Equal("id1_receipt.jpg"))
		})

		It("should return Not Found when updating a missing receipt", func() {
			do("PUT", "/api/receipts/missing", "application/json", strings.NewReader(`{"vendor": "Renamed"}`))
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("should delete a receipt", func() {
			do("DELETE", "/api/receipts/id1", "", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(db.receipts).NotTo(HaveKey("id1"))
		})

		When("the receipt is exported", func() {
			BeforeEach(func() {
				db.receipts["id1"].ExportID = "e1"
			})

			It("should refuse to delete it", func() {
				do("DELETE", "/api/receipts/id1", "", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusConflict))
			})
		})
	})

	Describe("handleValidateExport", func() {
		It("should report readiness per receipt", func() {
			postJSON("/api/export/validate", mixedBatch)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var result struct {
				ExportReady bool              `json:"exportReady"`
				MissingData []map[string]bool `json:"missingData"`
				Incomplete  int               `json:"incomplete"`
				Total       int               `json:"total"`
			}
			Expect(json.Unmarshal(body, &result)).To(Succeed())
			Expect(result.ExportReady).To(BeFalse())
			Expect(result.MissingData).To(HaveLen(2))
			Expect(result.MissingData[0]).To(BeEmpty())
			Expect(result.MissingData[1]).To(HaveKeyWithValue("vendor", true))
			Expect(result.Incomplete).To(Equal(1))
			Expect(result.Total).To(Equal(2))
		})

		When("the contact email has no @", func() {
			It("should return Bad Request", func() {
				postJSON("/api/export/validate", `{"receipts": [{"id": "abc123456789"}], "defaults": {"contactEmail": "accounts"}}`)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(string(body)).To(ContainSubstring("contact_email is not an email address"))
			})
		})
	})

	Describe("handleRenderExport", func() {
		When("the batch is complete", func() {
			JustBeforeEach(func() {
				postJSON("/api/export-csv", completeBatch)
			})

			It("should return status OK", func() {
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
			})

			It("should return a CSV download", func() {
				Expect(resp.Header.Get("Content-Type")).To(Equal("text/csv"))
				Expect(resp.Header.Get("Content-Disposition")).To(Equal(`attachment; filename="receipts-export-2024-03-01.csv"`))
			})

			It("should write the header and one row", func() {
				lines := strings.Split(string(body), "\n")
				Expect(lines).To(HaveLen(2))
				Expect(lines[0]).To(HavePrefix("*ContactName,EmailAddress"))
				Expect(lines[1]).To(ContainSubstring(`"RCP-23456789"`))
				Expect(lines[1]).To(HaveSuffix(`"USD"`))
			})
		})

		When("the batch is not ready", func() {
			It("should return Unprocessable Entity with the missing data", func() {
				postJSON("/api/export-csv", mixedBatch)
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))

				var result struct {
					Error       string            `json:"error"`
					MissingData []map[string]bool `json:"missingData"`
				}
				Expect(json.Unmarshal(body, &result)).To(Succeed())
				Expect(result.Error).To(Equal("Export data validation failed"))
				Expect(result.MissingData[1]).To(HaveKey("vendor"))
			})
		})

		When("a partial export is requested", func() {
			It("should export only the complete receipts", func() {
				postJSON("/api/export-csv?partial=true", mixedBatch)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(strings.Split(string(body), "\n")).To(HaveLen(2))
			})
		})

		When("the body is malformed", func() {
			It("should return Bad Request", func() {
				postJSON("/api/export-csv", `{"receipts": [{"amount": "lots"}]}`)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})

		When("no receipts are posted", func() {
			It("should return Bad Request", func() {
				postJSON("/api/export-csv", `{"receipts": []}`)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(string(body)).To(ContainSubstring("No receipts provided"))
			})
		})

		When("the defaults carry a malformed due date", func() {
			It("should return Bad Request", func() {
				postJSON("/api/export-csv", `{"receipts": [{"id": "abc123456789", "vendor": "Corner Store", "date": "2024-01-15",
					"category": "groceries", "amount": 100, "quantity": 1}], "defaults": {"dueDate": "next week"}}`)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(string(body)).To(ContainSubstring("due_date must be YYYY-MM-DD"))
			})
		})

		When("XLSX is requested", func() {
			It("should return a workbook", func() {
				postJSON("/api/export-xlsx", completeBatch)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal(FormatXLSX.ContentType()))
				Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("receipts-export-2024-03-01.xlsx"))
				Expect(body[:2]).To(Equal([]byte("PK")))
			})
		})
	})

	Describe("exports", func() {
		BeforeEach(func() {
			db.receipts["abc123456789"] = readyReceipt("abc123456789")
		})

		When("creating an export of ready receipts", func() {
			JustBeforeEach(func() {
				postJSON("/api/exports", `{"receipt_ids": ["abc123456789"], "defaults": {"invoicePrefix": "INV-"}}`)
			})

			It("should return status Created", func() {
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			})

			It("should return the export", func() {
				var batch Export
				Expect(json.Unmarshal(body, &batch)).To(Succeed())
				Expect(batch.ID).To(Equal("new-id"))
				Expect(batch.ReceiptIDs).To(ConsistOf("abc123456789"))
			})
		})

		When("creating an export of incomplete receipts", func() {
			BeforeEach(func() {
				db.receipts["abc123456789"].Vendor = ""
			})

			It("should return Unprocessable Entity", func() {
				postJSON("/api/exports", `{"receipt_ids": ["abc123456789"]}`)
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
			})
		})

		When("creating an export without receipts", func() {
			It("should return Bad Request", func() {
				postJSON("/api/exports", `{"receipt_ids": []}`)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})

		When("creating an export with a malformed due date", func() {
			It("should return Bad Request and save nothing", func() {
				postJSON("/api/exports", `{"receipt_ids": ["abc123456789"], "defaults": {"dueDate": "2024-13-45"}}`)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(string(body)).To(ContainSubstring("due_date must be YYYY-MM-DD"))
				Expect(db.exports).To(BeEmpty())
			})
		})

		When("creating an export of an exported receipt", func() {
			BeforeEach(func() {
				db.receipts["abc123456789"].ExportID = "older"
			})

			It("should return Conflict", func() {
				postJSON("/api/exports", `{"receipt_ids": ["abc123456789"]}`)
				Expect(resp.StatusCode).To(Equal(http.StatusConflict))
			})
		})

		When("creating an export of an unknown receipt", func() {
			It("should return Not Found", func() {
				postJSON("/api/exports", `{"receipt_ids": ["missing"]}`)
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			})
		})

		When("creating an export that lists a receipt twice", func() {
			It("should return Bad Request", func() {
				postJSON("/api/exports", `{"receipt_ids": ["abc123456789", "abc123456789"]}`)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})

		When("the database fails while creating an export", func() {
			BeforeEach(func() {
				db.getErr = errors.New("disk failure")
			})

			It("should return Internal Server Error", func() {
				postJSON("/api/exports", `{"receipt_ids": ["abc123456789"]}`)
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			})
		})

		When("an export exists", func() {
			BeforeEach(func() {
				db.exports["e1"] = &Export{ID: "e1", ReceiptIDs: []string{"abc123456789"}}
			})

			It("should list it", func() {
				do("GET", "/api/exports", "", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(string(body)).To(ContainSubstring(`"id":"e1"`))
			})

			It("should return it with its receipts", func() {
				do("GET", "/api/exports/e1", "", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(string(body)).To(ContainSubstring(`"receipts":[`))
			})

			It("should download its CSV", func() {
				do("GET", "/api/exports/e1/csv", "", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("text/csv"))
				Expect(string(body)).To(ContainSubstring(`"RCP-23456789"`))
			})

			It("should reject unknown formats", func() {
				do("GET", "/api/exports/e1/pdf", "", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			})
		})

		It("should return Not Found for a missing export", func() {
			do("GET", "/api/exports/missing", "", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("authentication", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "user", Password: "secret"}
		})

		It("should reject requests without credentials", func() {
			do("GET", "/api/receipts", "", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
		})

		It("should accept valid credentials", func() {
			req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/receipts", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("user:secret")))
			resp, err = http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("should reject wrong credentials", func() {
			req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/receipts", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("user", "wrong")
			resp, err = http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("Handler", func() {
		It("should answer preflight requests", func() {
			w := httptest.NewRecorder()
			server.Handler().ServeHTTP(w, httptest.NewRequest("OPTIONS", "/api/export-csv", nil))
			Expect(w.Code).To(Equal(http.StatusNoContent))
			Expect(w.Header().Get("Access-Control-Allow-Methods")).To(ContainSubstring("PUT"))
		})
	})

	Describe("HandleMetrics", func() {
		It("should serve the registry", func() {
			reg := prometheus.NewRegistry()
			service.WithMetrics(metrics.New(reg))
			server.HandleMetrics(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			service.metrics.IncrementScanned(3)

			do("GET", "/metrics", "", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(string(body)).To(ContainSubstring("receipt_export_receipts_scanned_total 3"))
		})
	})
})
