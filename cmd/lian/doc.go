// Copyright (c) Lian Authors.
// Licensed under the MIT License.

/*
lian 是数据库访问层的命令行入口。

# 命令

  - serve：加载配置，预热全部逻辑库连接池，在 server.addr 上提供
    /metrics、/healthz、/health 与 /debug/pools，收到 SIGINT/SIGTERM
    后依次关闭 HTTP 服务、缓存、连接池与遥测。
  - query：在指定逻辑库上执行一条语句并以 JSON 输出结果。
  - ping：并发检查每个逻辑库的连通性。
  - health：请求运行中服务的 /health。
  - version：输出构建时注入的版本信息。

配置按 默认值 → YAML 文件 → LIAN_ 前缀环境变量 的顺序加载。
*/
package main
