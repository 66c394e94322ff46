// Copyright (c) Lian Authors.
// Licensed under the MIT License.

/*
包 cache 提供基于 Redis 的按主键行缓存，供 orm 的 Get 使用。

# 概述

Manager 封装 go-redis 客户端，负责连接检查、TLS 与优雅关闭，
并在基础 Get/Set/Delete 之上提供 Row 与 Invalidate。

# 失效策略

每张表维护一个代号，键为 <prefix>:gen:<db>.<table>。行键包含
当前代号，任何写操作通过 Invalidate 对代号执行 INCR，旧代的
行键不再被读取并随 TTL 过期。

# 主要能力

  - 行编码：使用 CBOR，int64、float64、[]byte 与 time.Time 的类型
    在读写之间保持不变。
  - 并发合并：同一个键的并发未命中经 singleflight 只加载一次。
  - 降级：Redis 不可用时直接加载，不影响查询结果。
  - 指标：按表记录命中与未命中次数。
*/
package cache
