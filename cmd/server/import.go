package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"smart-notebook-go/internal/service"
	"smart-notebook-go/pkg/log"
)

var (
	importDir        string
	importNotebookID string
	importUserID     uint
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Upload every file of a directory into a notebook",
	Long: `Walks the directory and uploads each file through the normal upload flow,
so the running server's consumer indexes them. Files whose name already exists
in the notebook are skipped. Without --notebook a notebook named after the
directory is created.`,
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&importDir, "dir", "initfile", "directory to import")
	importCmd.Flags().StringVar(&importNotebookID, "notebook", "", "target notebook id")
	importCmd.Flags().UintVar(&importUserID, "user-id", 0, "owner of the notebook")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, _ []string) error {
	if importUserID == 0 {
		return errors.New("--user-id is required")
	}
	info, err := os.Stat(importDir)
	if err != nil || !info.IsDir() {
		return errors.New("import directory does not exist: " + importDir)
	}

	cfg := bootstrap()
	defer log.Sync()
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := context.Background()
	notebookID := importNotebookID
	if notebookID == "" {
		nb, err := a.notebookService.Create(ctx, importUserID, filepath.Base(importDir), "")
		if err != nil {
			return err
		}
		notebookID = nb.ID
		cmd.Printf("Created notebook %s\n", notebookID)
	}

	imported, err := importFiles(ctx, importDir, notebookID, importUserID, a.documentService, a.uploadService)
	if err != nil {
		return err
	}
	cmd.Printf("Imported %d files into notebook %s\n", imported, notebookID)
	return nil
}

// importFiles 扫描目录下文件并通过标准上传流程导入（按文件名幂等）。
func importFiles(ctx context.Context, dir, notebookID string, userID uint, docs service.DocumentService, uploads service.UploadService) (int, error) {
	existing, err := docs.List(ctx, notebookID, userID)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]bool, len(existing))
	for _, d := range existing {
		seen[d.FileName] = true
	}

	imported := 0
	walkErr := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		fileName := info.Name()
		if seen[fileName] {
			log.Infof("[Import] 已存在，跳过: %s", fileName)
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			log.Warnf("[Import] 读取文件失败: %s, err=%v", path, err)
			return nil
		}
		if _, err := uploads.Upload(ctx, service.UploadRequest{
			NotebookID: notebookID,
			UserID:     userID,
			FileName:   fileName,
			Data:       data,
		}); err != nil {
			log.Warnf("[Import] 上传失败: %s, err=%v", path, err)
			return nil
		}
		seen[fileName] = true
		imported++
		log.Infof("[Import] 导入完成并已触发索引: %s", fileName)
		return nil
	})
	return imported, walkErr
}
