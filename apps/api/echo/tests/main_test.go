package tests

import (
	"fmt"
	"io/ioutil"
	"os"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	. "github.com/attenx/attenx/apps/api/echo"
	"github.com/attenx/attenx/core"
	"github.com/attenx/attenx/core/anomaly"
	"github.com/attenx/attenx/core/sheet"
	emailsvc "github.com/attenx/attenx/services/email"
	"github.com/attenx/attenx/storage/database/inmem"
	"github.com/attenx/attenx/storage/files"
	testutil "github.com/attenx/attenx/tests"
)

var (
	conf *core.Config
	app  Server

	sheetRepo   sheet.Repository
	anomalyRepo anomaly.Repository
	sheetSvc    *sheet.Service
)

func TestMain(m *testing.M) {
	uploadDir, err := ioutil.TempDir("", "attenx-uploads")
	if err != nil {
		fmt.Printf("TempDir(): %v", err)
		os.Exit(1)
	}
	defer func() { _ = os.RemoveAll(uploadDir) }()

	conf = testutil.NewConfig(uploadDir)

	// set up repos
	sheets := inmem.NewSheetRepository()
	anomalies := inmem.NewAnomalyRepository(sheets)
	sheetRepo = sheets
	anomalyRepo = anomalies

	// set up services
	logger := testutil.Logger{}
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	fileStore := files.NewDiskStore(uploadDir)
	detector := sheet.NewSimulatedDetector(conf.Processing.Seed, conf.Processing.AnomalyRate)

	sheetSvc = sheet.NewService(conf, logger, sheets, anomalies, fileStore, detector, mailSvc)
	anomalySvc := anomaly.NewService(anomalies)

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	sheet.InitValidators(validate, translator)
	anomaly.InitValidators(validate, translator)

	// set up server
	app = NewServer(
		ServerDeps{
			Conf:       conf,
			Logger:     logger,
			SheetSvc:   sheetSvc,
			AnomalySvc: anomalySvc,
			Validate:   validate,
			Translator: translator,
		},
	)

	os.Exit(m.Run())
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
