package cli

import (
	"github.com/urfave/cli/v3"

	"github.com/jinford/bsp-scan/internal/core/scan"
)

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}
}

func taskIDFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "id",
		Usage:    "タスクID (UUID)",
		Required: true,
	}
}

// NewRootCommand はコマンドツリー全体を組み立てる
func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "bsp-scan",
		Usage: "A株の買売点を一括スキャンするサービス",
		Commands: []*cli.Command{
			{
				Name:  "server",
				Usage: "HTTPサーバ管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "start",
						Usage: "HTTPサーバを起動",
						Flags: []cli.Flag{
							envFlag(),
							&cli.IntFlag{
								Name:  "port",
								Usage: "HTTPポート（省略時は環境変数またはデフォルトの8000）",
								Value: 8000,
							},
						},
						Action: ServerStartAction,
					},
				},
			},
			{
				Name:  "scan",
				Usage: "スキャン実行コマンド",
				Commands: []*cli.Command{
					{
						Name:  "start",
						Usage: "スキャンを起動し完了まで進捗を表示",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:  "pool",
								Usage: "対象範囲 (all / boards / custom)",
								Value: string(scan.PoolAll),
							},
							&cli.StringSliceFlag{
								Name:  "board",
								Usage: "板块 (sh_main / sz_main / cyb / kcb / bj / etf)",
							},
							&cli.StringSliceFlag{
								Name:  "code",
								Usage: "銘柄コード (例: sz.300750)",
							},
							&cli.StringFlag{
								Name:  "kline",
								Usage: "K線周期 (day / week / month)",
								Value: string(scan.KlineDay),
							},
							&cli.StringSliceFlag{
								Name:  "types",
								Usage: "買売点種別（優先順）",
							},
							&cli.IntFlag{
								Name:  "window",
								Usage: "直近何日以内の買売点を対象にするか",
								Value: scan.DefaultTimeWindowDays,
							},
							&cli.IntFlag{
								Name:  "limit",
								Usage: "取得するK線本数",
								Value: scan.DefaultKlineLimit,
							},
						},
						Action: ScanStartAction,
					},
				},
			},
			{
				Name:  "task",
				Usage: "スキャンタスク管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "list",
						Usage: "タスク一覧を表示",
						Flags: []cli.Flag{
							envFlag(),
							&cli.IntFlag{
								Name:  "page",
								Usage: "ページ番号",
								Value: 1,
							},
							&cli.IntFlag{
								Name:  "page-size",
								Usage: "1ページの件数",
								Value: scan.DefaultPageSize,
							},
							&cli.StringFlag{
								Name:  "status",
								Usage: "ステータスで絞り込み (running / completed / cancelled / error / all)",
							},
						},
						Action: TaskListAction,
					},
					{
						Name:   "show",
						Usage:  "タスク詳細と結果を表示",
						Flags:  []cli.Flag{envFlag(), taskIDFlag()},
						Action: TaskShowAction,
					},
					{
						Name:  "delete",
						Usage: "タスクと結果を削除",
						Flags: []cli.Flag{
							envFlag(),
							taskIDFlag(),
							&cli.BoolFlag{
								Name:  "yes",
								Usage: "確認を省略",
							},
						},
						Action: TaskDeleteAction,
					},
				},
			},
			{
				Name:  "results",
				Usage: "スキャン結果コマンド",
				Commands: []*cli.Command{
					{
						Name:  "all",
						Usage: "複数タスクの結果を横断表示",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:  "status",
								Usage: "タスクのステータス (既定 completed、all で絞り込みなし)",
							},
							&cli.IntFlag{
								Name:  "limit",
								Usage: "対象タスク数の上限 (0 は無制限)",
							},
						},
						Action: ResultsAllAction,
					},
				},
			},
			{
				Name:  "db",
				Usage: "データベース管理コマンド",
				Commands: []*cli.Command{
					{
						Name:   "migrate",
						Usage:  "スキーマを適用",
						Flags:  []cli.Flag{envFlag()},
						Action: DBMigrateAction,
					},
				},
			},
			{
				Name:  "stock",
				Usage: "銘柄マスタ管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "import",
						Usage: "CSVから銘柄を一括取り込み",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "file",
								Usage:    "CSVファイルパス (code,name[,type,pinyin,pinyin_short])",
								Required: true,
							},
						},
						Action: StockImportAction,
					},
				},
			},
		},
	}
}
